package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

const runColumns = `id, user_id, mode, source, parameters, detect_ai, entries, records, failed, created_at`

// RunRepo persists run summaries. It implements domain.RunHistoryRepository.
type RunRepo struct{ Pool PgxPool }

// NewRunRepo constructs a RunRepo with the given pool.
func NewRunRepo(p PgxPool) *RunRepo { return &RunRepo{Pool: p} }

// Create inserts one summary row.
func (r *RunRepo) Create(ctx domain.Context, s domain.RunSummary) error {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "evaluation_runs"),
	)
	params := s.Parameters
	if params == nil {
		params = []string{}
	}
	q := `INSERT INTO evaluation_runs (` + runColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, s.ID, s.UserID, string(s.Mode), s.Source, params, s.DetectAI, s.Entries, s.Records, s.Failed, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("op=runs.create: %w", err)
	}
	return nil
}

// ListByUser returns the newest summaries for a user, newest first.
func (r *RunRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.RunSummary, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.ListByUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "evaluation_runs"),
		attribute.Int("db.limit", limit),
	)
	q := `SELECT ` + runColumns + ` FROM evaluation_runs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=runs.list: %w", err)
	}
	defer rows.Close()
	out := make([]domain.RunSummary, 0, limit)
	for rows.Next() {
		var (
			s    domain.RunSummary
			mode string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &mode, &s.Source, &s.Parameters, &s.DetectAI, &s.Entries, &s.Records, &s.Failed, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=runs.list: %w", err)
		}
		s.Mode = domain.RunMode(mode)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=runs.list: %w", err)
	}
	return out, nil
}
