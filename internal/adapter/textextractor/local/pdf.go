package local

import (
	"bytes"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the page texts joined by newlines. Glyphs are regrouped
// into visual rows by baseline so each printed line stays on its own line.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		lines = append(lines, pageLines(p.Content().Text)...)
	}
	return strings.Join(lines, "\n"), nil
}

// pageLines groups glyphs sharing a rounded baseline, top row first, and
// orders each row left to right.
func pageLines(glyphs []pdf.Text) []string {
	rows := map[float64][]pdf.Text{}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		y := math.Round(g.Y)
		rows[y] = append(rows[y], g)
	}
	ys := make([]float64, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	lines := make([]string, 0, len(ys))
	for _, y := range ys {
		if line := joinRow(rows[y]); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// joinRow concatenates a row of glyphs, inserting a space where the gap to
// the previous glyph is wider than half a glyph and no space is printed.
func joinRow(row []pdf.Text) string {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
	var b strings.Builder
	for i, g := range row {
		if i > 0 {
			prev := row[i-1]
			width := prev.W
			if width <= 0 {
				width = prev.FontSize * 0.5
			}
			gap := g.X - (prev.X + prev.W)
			if gap > width*0.5 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	return strings.TrimSpace(b.String())
}
