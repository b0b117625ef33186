// Package tika extracts document text through an Apache Tika server.
//
// It is the alternative to the in-process extractor for deployments that
// already run Tika. Line structure is preserved because entries are parsed
// line by line.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

const (
	extractorName  = "tika"
	defaultBaseURL = "http://localhost:9998"
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Extract uploads the document bytes and returns the plain text.
func (c *Client) Extract(ctx context.Context, fileName string, data []byte) (text string, err error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	format := strings.TrimPrefix(ext, ".")
	ct := contentTypeFromExt(ext)
	if ct == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
	start := time.Now()
	defer func() {
		observability.ObserveExtraction(extractorName, format, err, time.Since(start))
		if err != nil {
			obsctx.LoggerFromContext(ctx).Warn("text extraction failed",
				slog.String("extractor", extractorName),
				slog.String("file", fileName),
				slog.Any("error", err))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", ct)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: tika: %v", domain.ErrExtraction, err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return "", fmt.Errorf("%w: tika rejected %s", domain.ErrUnsupportedFormat, ext)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: tika status %d", domain.ErrExtraction, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	return string(b), nil
}

// Ping checks GET /version for readiness.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("tika status %d", resp.StatusCode)
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return ""
}
