package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
)

func TestNewLogger_TagsAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	lg.Info("login", slog.String("email", "a@example.com"), slog.String("password", "hunter2"), slog.String("Authorization", "Bearer x"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "svc", line["service"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "a@example.com", line["email"])
	assert.Equal(t, "[REDACTED]", line["password"])
	assert.Equal(t, "[REDACTED]", line["Authorization"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want slog.Level
	}{
		{config.Config{AppEnv: "dev"}, slog.LevelDebug},
		{config.Config{AppEnv: "prod"}, slog.LevelInfo},
		{config.Config{AppEnv: "prod", LogLevel: "DEBUG"}, slog.LevelDebug},
		{config.Config{AppEnv: "dev", LogLevel: "warning"}, slog.LevelWarn},
		{config.Config{AppEnv: "test", LogLevel: "error"}, slog.LevelError},
		{config.Config{AppEnv: "test", LogLevel: "loud"}, slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logLevel(tt.cfg), "%+v", tt.cfg)
	}
}

func TestNewLogger_DropsDebugInProd(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, config.Config{AppEnv: "prod"})
	lg.Debug("hidden")
	assert.Empty(t, buf.String())
}
