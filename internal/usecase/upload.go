package usecase

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/pkg/textx"
)

// Supported upload extensions and their canonical MIME types.
var supportedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

// UploadService turns an uploaded document into evaluation entries.
type UploadService struct {
	Extractor domain.TextExtractor
}

// NewUploadService constructs an UploadService with the given extractor.
func NewUploadService(x domain.TextExtractor) UploadService { return UploadService{Extractor: x} }

// Ingest extracts the document text and parses it into entries. It fails with
// ErrUnsupportedFormat, ErrExtraction or ErrNoEntriesFound; each of those
// halts this upload only.
func (s UploadService) Ingest(ctx domain.Context, fileName string, data []byte) ([]domain.Entry, error) {
	if !IsSupportedFile(fileName) {
		return nil, fmt.Errorf("%w: %s (upload a PDF, DOCX or TXT file)", domain.ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	text, err := s.Extractor.Extract(ctx, fileName, data)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) || errors.Is(err, domain.ErrExtraction) {
			return nil, fmt.Errorf("op=upload.Ingest: %w", err)
		}
		return nil, fmt.Errorf("op=upload.Ingest: %w: %v", domain.ErrExtraction, err)
	}
	entries := ParseEntries(textx.SanitizeText(text))
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: expected alternating \"Prompt:\" and \"Response:\" lines", domain.ErrNoEntriesFound)
	}
	return entries, nil
}

// IsSupportedFile reports whether the file name has a PDF, DOCX or TXT extension.
func IsSupportedFile(name string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MIMEFromName returns the canonical MIME type for a supported file name.
func MIMEFromName(name string) string {
	if m, ok := supportedExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return "application/octet-stream"
}
