package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

// poolStub implements postgres.PgxPool and records the last statement.
type poolStub struct {
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error
	rows     *rowsStub

	lastSQL  string
	lastArgs []any
	execs    []execCall
}

type execCall struct {
	sql  string
	args []any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.lastSQL, p.lastArgs = sql, args
	p.execs = append(p.execs, execCall{sql: sql, args: args})
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.lastSQL, p.lastArgs = sql, args
	return rowFunc(func(...any) error { return errors.New("no row configured") })
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.lastSQL, p.lastArgs = sql, args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}

// rowsStub yields summaries in order.
type rowsStub struct {
	data    []domain.RunSummary
	i       int
	scanErr error
	err     error
	closed  bool
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func (r *rowsStub) Close()                                       { r.closed = true }
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

func (r *rowsStub) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *rowsStub) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	s := r.data[r.i-1]
	*(dest[0].(*string)) = s.ID
	*(dest[1].(*string)) = s.UserID
	*(dest[2].(*string)) = string(s.Mode)
	*(dest[3].(*string)) = s.Source
	*(dest[4].(*[]string)) = s.Parameters
	*(dest[5].(*bool)) = s.DetectAI
	*(dest[6].(*int)) = s.Entries
	*(dest[7].(*int)) = s.Records
	*(dest[8].(*int)) = s.Failed
	*(dest[9].(*time.Time)) = s.CreatedAt
	return nil
}
