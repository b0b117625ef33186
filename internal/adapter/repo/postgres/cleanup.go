package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// CleanupService enforces data retention on run history and drops budget
// mirror rows for buckets that have been idle long enough to be full again.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
	// BucketIdle is how long a budget bucket must be untouched before its
	// mirror row is dropped. It must exceed the longest bucket refill time.
	BucketIdle time.Duration
	Now        func() time.Time
}

// CleanupResult counts the rows one pass removed.
type CleanupResult struct {
	Runs    int64
	Buckets int64
}

// NewCleanupService creates a cleanup service; retentionDays <= 0 means 90.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays, BucketIdle: 48 * time.Hour, Now: time.Now}
}

// CleanupOldData runs one retention pass.
func (s *CleanupService) CleanupOldData(ctx context.Context) (CleanupResult, error) {
	ctx, span := otel.Tracer("repo.runs").Start(ctx, "runs.Cleanup")
	defer span.End()

	var res CleanupResult
	now := s.Now().UTC()
	cutoff := now.AddDate(0, 0, -s.RetentionDays)
	tag, err := s.Pool.Exec(ctx, `DELETE FROM evaluation_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return res, fmt.Errorf("op=cleanup.runs: %w", err)
	}
	res.Runs = tag.RowsAffected()

	if s.BucketIdle > 0 {
		tag, err = s.Pool.Exec(ctx, `DELETE FROM rate_limit_buckets WHERE last_refill < $1`, now.Add(-s.BucketIdle))
		if err != nil {
			return res, fmt.Errorf("op=cleanup.buckets: %w", err)
		}
		res.Buckets = tag.RowsAffected()
	}

	span.SetAttributes(
		attribute.Int64("cleanup.runs", res.Runs),
		attribute.Int64("cleanup.buckets", res.Buckets),
	)
	slog.Info("data cleanup completed",
		slog.Int64("deleted_runs", res.Runs),
		slog.Int64("deleted_buckets", res.Buckets),
		slog.Time("cutoff", cutoff),
	)
	return res, nil
}

// RunPeriodic cleans up immediately and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.CleanupOldData(ctx); err != nil && ctx.Err() == nil {
			slog.Error("data cleanup failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
		}
	}
}
