// Package local extracts text from PDF, DOCX and TXT uploads in-process.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

const extractorName = "local"

// Extractor implements domain.TextExtractor without external services.
type Extractor struct{}

// New returns a local extractor.
func New() *Extractor { return &Extractor{} }

// Extract dispatches on the file extension. Parser failures, including
// panics inside the PDF reader, are reported as domain.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) (text string, err error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %s parser panic: %v", domain.ErrExtraction, format, r)
		}
		observability.ObserveExtraction(extractorName, format, err, time.Since(start))
		if err != nil {
			obsctx.LoggerFromContext(ctx).Warn("text extraction failed",
				slog.String("extractor", extractorName),
				slog.String("file", fileName),
				slog.Any("error", err))
		}
	}()

	switch format {
	case "pdf":
		text, err = extractPDF(data)
	case "docx":
		text, err = extractDOCX(data)
	case "txt":
		text = decodeText(data)
	default:
		return "", fmt.Errorf("%w: .%s", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, format, err)
	}
	return text, nil
}
