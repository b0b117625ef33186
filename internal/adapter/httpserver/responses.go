// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the account flow, the manual and upload evaluation modes and
// access to the caller's current run and its PDF report.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details"`
	RequestID string      `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error onto an HTTP status and envelope code.
// Pipeline sentinels are checked first: an evaluation failure caused by an
// upstream timeout still reports EVALUATION_FAILED.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity, "EXTRACTION_ERROR"
	case errors.Is(err, domain.ErrNoEntriesFound):
		return http.StatusUnprocessableEntity, "NO_ENTRIES_FOUND"
	case errors.Is(err, domain.ErrEvaluationFailed):
		return http.StatusBadGateway, "EVALUATION_FAILED"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusGone, "TOKEN_EXPIRED"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrUpstreamFailure):
		return http.StatusServiceUnavailable, "UPSTREAM_FAILURE"
	case errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusServiceUnavailable, "SCHEMA_INVALID"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code, codeStr := errorStatus(err)
	var be *usecase.BudgetExceededError
	if errors.As(err, &be) {
		secs := int(math.Ceil(be.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	body := apiError{Code: codeStr, Message: err.Error(), Details: details}
	if r != nil {
		body.RequestID = obsctx.RequestIDFromContext(r.Context())
		if code >= http.StatusInternalServerError {
			LoggerFrom(r).Error("request failed", slog.String("code", codeStr), slog.Any("error", err))
		}
	}
	writeJSON(w, code, errorEnvelope{Error: body})
}
