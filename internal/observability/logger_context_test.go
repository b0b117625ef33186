package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, slog.Default(), LoggerFromContext(ctx))

	lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, lg, LoggerFromContext(ContextWithLogger(ctx, lg)))
	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
}

func TestContextWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx := ContextWithAttrs(base, slog.String("run_id", "r-1"), slog.String("user_id", "u-1"))
	LoggerFromContext(ctx).Info("entry judged")
	assert.Contains(t, buf.String(), "run_id=r-1")
	assert.Contains(t, buf.String(), "user_id=u-1")

	buf.Reset()
	LoggerFromContext(base).Info("untouched")
	assert.NotContains(t, buf.String(), "run_id")

	assert.Equal(t, base, ContextWithAttrs(base))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, ctx, ContextWithRequestID(ctx, ""))
	assert.Equal(t, "01HZX", RequestIDFromContext(ContextWithRequestID(ctx, "01HZX")))
}
