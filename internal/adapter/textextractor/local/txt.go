package local

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts a plain-text upload to UTF-8. Valid UTF-8 is returned
// as is; otherwise the charset is detected and decoded, falling back to a
// UTF-8 decode with U+FFFD for invalid bytes when detection or decoding fails.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return asUTF8(data)
	}
	enc, err := htmlindex.Get(res.Charset)
	if err != nil {
		return asUTF8(data)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return asUTF8(data)
	}
	return asUTF8(out)
}

func asUTF8(b []byte) string { return strings.ToValidUTF8(string(b), "\uFFFD") }
