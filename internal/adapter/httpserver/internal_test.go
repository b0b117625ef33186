package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"},
		{fmt.Errorf("op=upload.Ingest: %w", domain.ErrExtraction), http.StatusUnprocessableEntity, "EXTRACTION_ERROR"},
		{domain.ErrNoEntriesFound, http.StatusUnprocessableEntity, "NO_ENTRIES_FOUND"},
		{errors.Join(domain.ErrEvaluationFailed, domain.ErrUpstreamTimeout), http.StatusBadGateway, "EVALUATION_FAILED"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{domain.ErrTokenExpired, http.StatusGone, "TOKEN_EXPIRED"},
		{&usecase.BudgetExceededError{RetryAfter: time.Second}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrUpstreamRateLimit, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestWriteError_RetryAfterRoundsUp(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil, &usecase.BudgetExceededError{RetryAfter: 1500 * time.Millisecond}, nil)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	writeError(rec, nil, &usecase.BudgetExceededError{}, nil)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestBuildSelection(t *testing.T) {
	sel, err := buildSelection(selectionRequest{})
	require.NoError(t, err)
	assert.Len(t, sel, 7)
	assert.Equal(t, "fairness", sel[0].Key)

	sel, err = buildSelection(selectionRequest{Categories: []string{"content", "rai"}})
	require.NoError(t, err)
	assert.Len(t, sel, 12)
	assert.Equal(t, "sustainability", sel[6].Key)
	assert.Equal(t, "groundedness", sel[7].Key)

	sel, err = buildSelection(selectionRequest{Parameters: []string{"Explainability", "human centric values", "fairness", "fairness"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fairness", "human_centric_values", "explainability"}, sel.Keys())

	sel, err = buildSelection(selectionRequest{Categories: []string{"content"}, Parameters: []string{"clarity"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"clarity"}, sel.Keys())

	_, err = buildSelection(selectionRequest{Categories: []string{"content"}, Parameters: []string{"privacy"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = buildSelection(selectionRequest{Parameters: []string{"verbosity"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAllowedMIMEFor(t *testing.T) {
	assert.True(t, allowedMIMEFor("text/plain; charset=utf-8", "a.txt"))
	assert.True(t, allowedMIMEFor("text/html; charset=utf-8", "a.TXT"))
	assert.True(t, allowedMIMEFor("application/pdf", "a.pdf"))
	assert.True(t, allowedMIMEFor("application/zip", "a.docx"))
	assert.False(t, allowedMIMEFor("text/plain", "a.pdf"))
	assert.False(t, allowedMIMEFor("application/pdf", "a.docx"))
	assert.False(t, allowedMIMEFor("application/pdf", "a.csv"))
}

func TestSplitListAndParseBool(t *testing.T) {
	assert.Equal(t, []string{"rai", "content", "clarity"}, splitList([]string{"rai, content", " ", "clarity"}))
	assert.Nil(t, splitList(nil))
	for _, v := range []string{"1", "true", "on", "YES"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "off", "maybe"} {
		assert.False(t, parseBool(v), v)
	}
}

func TestSessionToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, sessionToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", sessionToken(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", sessionToken(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, sessionToken(r))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INTERNAL"`)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
		assert.NotNil(t, LoggerFrom(r))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 26)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "given")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "given", rec.Header().Get("X-Request-Id"))

	for _, bad := range []string{"has space", strings.Repeat("x", maxRequestIDLen+1), "line\nbreak"} {
		r = httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-Id", bad)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Len(t, rec.Header().Get("X-Request-Id"), 26, bad)
	}
}

func TestWriteError_CarriesRequestID(t *testing.T) {
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrNotFound, nil)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}

func TestAccessLog_IncludesUser(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		noteUser(r, "u-7")
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/x", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http_access", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "u-7", line["user_id"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Minute)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
