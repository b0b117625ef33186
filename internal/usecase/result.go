package usecase

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

// DefaultHistoryLimit bounds history listings when the caller gives no limit.
const DefaultHistoryLimit = 20

// ResultService provides read access to the caller's current run and its report.
type ResultService struct {
	Runs        domain.RunStore
	HistoryRepo domain.RunHistoryRepository
	Renderer    domain.ReportRenderer
}

// NewResultService constructs a ResultService.
func NewResultService(runs domain.RunStore, history domain.RunHistoryRepository, r domain.ReportRenderer) ResultService {
	return ResultService{Runs: runs, HistoryRepo: history, Renderer: r}
}

// Preview returns the report structure of the current run and its ETag.
// notModified is true when ifNoneMatch equals the computed ETag.
func (s ResultService) Preview(ctx domain.Context, userID, ifNoneMatch string) (rep domain.Report, etag string, notModified bool, err error) {
	run, err := s.current(ctx, userID)
	if err != nil {
		return domain.Report{}, "", false, err
	}
	rep = domain.BuildReport(run)
	etag = makeETag(rep)
	if ifNoneMatch != "" && ifNoneMatch == etag {
		return domain.Report{}, etag, true, nil
	}
	return rep, etag, false, nil
}

// Download renders the current run as a document.
func (s ResultService) Download(ctx domain.Context, userID string) (body []byte, contentType, fileName string, err error) {
	run, err := s.current(ctx, userID)
	if err != nil {
		return nil, "", "", err
	}
	var buf bytes.Buffer
	if err := s.Renderer.Render(&buf, domain.BuildReport(run)); err != nil {
		slog.Error("report rendering failed", slog.String("run_id", run.ID), slog.Any("error", err))
		return nil, "", "", fmt.Errorf("op=result.Download: %w", err)
	}
	return buf.Bytes(), s.Renderer.ContentType(), s.Renderer.FileName(), nil
}

// Discard removes the current run.
func (s ResultService) Discard(ctx domain.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: no identity", domain.ErrUnauthenticated)
	}
	return s.Runs.Discard(ctx, userID)
}

// History lists the caller's past runs, newest first.
func (s ResultService) History(ctx domain.Context, userID string, limit int) ([]domain.RunSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no identity", domain.ErrUnauthenticated)
	}
	if s.HistoryRepo == nil {
		return []domain.RunSummary{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultHistoryLimit
	}
	return s.HistoryRepo.ListByUser(ctx, userID, limit)
}

func (s ResultService) current(ctx domain.Context, userID string) (domain.Run, error) {
	if userID == "" {
		return domain.Run{}, fmt.Errorf("%w: no identity", domain.ErrUnauthenticated)
	}
	run, err := s.Runs.Current(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Run{}, fmt.Errorf("%w: no evaluation results yet", domain.ErrNotFound)
		}
		return domain.Run{}, fmt.Errorf("op=result.current: %w", err)
	}
	return run, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
