package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// PendingPurger removes signups whose verification token expired.
type PendingPurger interface {
	DeleteExpiredPending(ctx context.Context, before time.Time) (int64, error)
}

// PendingSignupSweeper periodically purges expired pending signups so the
// address can be registered again.
type PendingSignupSweeper struct {
	users    PendingPurger
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewPendingSignupSweeper returns nil when users is nil.
func NewPendingSignupSweeper(users PendingPurger, grace, interval time.Duration) *PendingSignupSweeper {
	if users == nil {
		return nil
	}
	if grace < 0 {
		grace = 0
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &PendingSignupSweeper{users: users, grace: grace, interval: interval, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *PendingSignupSweeper) Run(ctx context.Context) {
	if s == nil || s.users == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("pending signup sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *PendingSignupSweeper) sweepOnce(ctx context.Context) int64 {
	ctx, span := otel.Tracer("accounts.sweeper").Start(ctx, "PendingSignupSweeper.sweepOnce")
	defer span.End()

	cutoff := s.now().Add(-s.grace)
	span.SetAttributes(attribute.Float64("accounts.grace_seconds", s.grace.Seconds()))
	n, err := s.users.DeleteExpiredPending(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("pending signup sweep failed", slog.Any("error", err))
		return 0
	}
	span.SetAttributes(attribute.Int64("accounts.purged", n))
	if n > 0 {
		slog.Info("expired pending signups purged", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}
	return n
}
