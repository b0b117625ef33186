package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
)

// redactedKeys never reach the log sink with their values.
var redactedKeys = map[string]bool{
	"password":         true,
	"confirm_password": true,
	"password_hash":    true,
	"token":            true,
	"authorization":    true,
	"cookie":           true,
	"api_key":          true,
}

// SetupLogger configures the process JSON logger on stdout.
func SetupLogger(cfg config.Config) *slog.Logger {
	return NewLogger(os.Stdout, cfg)
}

// NewLogger builds a JSON slog logger writing to w, tagged with service and env.
func NewLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       logLevel(cfg),
		ReplaceAttr: redact,
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

// logLevel honours LOG_LEVEL, otherwise debug in dev and info elsewhere.
func logLevel(cfg config.Config) slog.Level {
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if cfg.IsDev() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
