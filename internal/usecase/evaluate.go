// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	obsmetrics "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

// ProgressFunc receives the number of attempted entries after each entry.
// done increases by one per call and equals total exactly once, on the last call.
type ProgressFunc func(done, total int)

// BudgetExceededError reports an exhausted evaluation budget.
type BudgetExceededError struct {
	RetryAfter time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%v: evaluation budget exhausted, retry after %s", domain.ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Unwrap lets callers match domain.ErrRateLimited.
func (e *BudgetExceededError) Unwrap() error { return domain.ErrRateLimited }

// EvaluateService drives entries through the judge and the AI-origin detector
// and keeps the resulting run as the caller's current run.
type EvaluateService struct {
	Judge    domain.Evaluator
	Detector domain.OriginDetector
	Runs     domain.RunStore
	History  domain.RunHistoryRepository
	Budget   domain.BudgetLimiter
	Now      func() time.Time
}

// NewEvaluateService constructs an EvaluateService. History and Budget may be nil.
func NewEvaluateService(j domain.Evaluator, d domain.OriginDetector, runs domain.RunStore, history domain.RunHistoryRepository, budget domain.BudgetLimiter) EvaluateService {
	return EvaluateService{Judge: j, Detector: d, Runs: runs, History: history, Budget: budget, Now: time.Now}
}

// EvaluateSingle evaluates one manually entered pair. A judge failure aborts
// the run and is returned wrapping domain.ErrEvaluationFailed.
func (s EvaluateService) EvaluateSingle(ctx domain.Context, sess domain.Session, prompt, response string) (domain.Run, error) {
	entries := []domain.Entry{{Prompt: prompt, Response: response}}
	if prompt == "" || response == "" {
		return domain.Run{}, fmt.Errorf("%w: prompt and response are required", domain.ErrInvalidArgument)
	}
	return s.run(ctx, sess, domain.RunModeManual, "", entries, nil)
}

// EvaluateBatch evaluates every entry of one document. Entries whose
// evaluation fails are skipped and counted in Run.Failed.
func (s EvaluateService) EvaluateBatch(ctx domain.Context, sess domain.Session, source string, entries []domain.Entry, progress ProgressFunc) (domain.Run, error) {
	if len(entries) == 0 {
		return domain.Run{}, fmt.Errorf("%w: nothing to evaluate", domain.ErrNoEntriesFound)
	}
	return s.run(ctx, sess, domain.RunModeBatch, source, entries, progress)
}

// RunCost is the budget charged for evaluating n entries.
func RunCost(n int, detectAI bool) int64 {
	if detectAI {
		return int64(2 * n)
	}
	return int64(n)
}

func (s EvaluateService) run(ctx domain.Context, sess domain.Session, mode domain.RunMode, source string, entries []domain.Entry, progress ProgressFunc) (domain.Run, error) {
	lg := observability.LoggerFromContext(ctx)
	if sess.Identity.UserID == "" {
		return domain.Run{}, fmt.Errorf("%w: sign in to evaluate", domain.ErrUnauthenticated)
	}
	if len(sess.Selection) == 0 {
		return domain.Run{}, fmt.Errorf("%w: at least one evaluation parameter must be selected", domain.ErrInvalidArgument)
	}
	if err := s.admit(ctx, sess, len(entries)); err != nil {
		return domain.Run{}, err
	}

	start := s.now()
	run := domain.Run{
		ID:         uuid.NewString(),
		UserID:     sess.Identity.UserID,
		Mode:       mode,
		Source:     source,
		Parameters: sess.Selection.Keys(),
		DetectAI:   sess.DetectAI,
		Entries:    len(entries),
		Records:    make([]domain.Record, 0, len(entries)),
		CreatedAt:  start.UTC(),
	}
	ctx = observability.ContextWithAttrs(ctx, slog.String("run_id", run.ID), slog.String("mode", string(mode)))
	lg = observability.LoggerFromContext(ctx)
	total := len(entries)
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return domain.Run{}, fmt.Errorf("op=evaluate.run: %w", err)
		}
		verdict, err := s.Judge.Evaluate(ctx, domain.EvaluationRequest{Prompt: e.Prompt, Response: e.Response, Selection: sess.Selection})
		if err != nil {
			obsmetrics.ObserveEntry(obsmetrics.OutcomeFailed)
			if mode == domain.RunModeManual {
				if !errors.Is(err, domain.ErrEvaluationFailed) {
					err = fmt.Errorf("%w: %v", domain.ErrEvaluationFailed, err)
				}
				return domain.Run{}, err
			}
			lg.Warn("entry evaluation failed; skipping", slog.Int("entry", i+1), slog.Any("error", err))
			run.Failed++
			notify(progress, i+1, total)
			continue
		}
		obsmetrics.ObserveEntry(obsmetrics.OutcomeEvaluated)
		rec := domain.Record{Index: len(run.Records) + 1, Prompt: e.Prompt, Response: e.Response, Verdict: verdict}
		if sess.DetectAI {
			origin := s.Detector.Detect(ctx, e.Response)
			rec.Origin = &origin
		}
		run.Records = append(run.Records, rec)
		notify(progress, i+1, total)
	}

	if err := s.Runs.Save(ctx, run); err != nil {
		lg.Error("failed to store current run", slog.Any("error", err))
	}
	if s.History != nil {
		if err := s.History.Create(ctx, run.Summary()); err != nil {
			lg.Error("failed to record run history", slog.Any("error", err))
		}
	}
	dur := s.now().Sub(start)
	obsmetrics.ObserveRun(string(mode), dur)
	lg.Info("evaluation run completed",
		slog.Int("entries", run.Entries),
		slog.Int("records", len(run.Records)),
		slog.Int("failed", run.Failed),
		slog.Bool("detect_ai", run.DetectAI),
		slog.Duration("duration", dur))
	return run, nil
}

// admit charges the run against the user's budget. Limiter errors fail open.
func (s EvaluateService) admit(ctx domain.Context, sess domain.Session, n int) error {
	if s.Budget == nil {
		return nil
	}
	allowed, retryAfter, err := s.Budget.Allow(ctx, "eval:"+sess.Identity.UserID, RunCost(n, sess.DetectAI))
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("evaluation budget check failed; allowing run", slog.Any("error", err))
		return nil
	}
	if !allowed {
		return &BudgetExceededError{RetryAfter: retryAfter}
	}
	return nil
}

func (s EvaluateService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func notify(progress ProgressFunc, done, total int) {
	if progress != nil {
		progress(done, total)
	}
}
