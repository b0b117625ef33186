package httpserver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/service/identity"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(_ domain.Context, _ string, _ []byte) (string, error) {
	return s.text, s.err
}

// stubJudge answers Y for every selected parameter, failing prompts listed in fail.
type stubJudge struct {
	mu   sync.Mutex
	fail map[string]bool
	reqs []domain.EvaluationRequest
}

func (j *stubJudge) Evaluate(_ domain.Context, req domain.EvaluationRequest) (domain.Verdict, error) {
	j.mu.Lock()
	j.reqs = append(j.reqs, req)
	j.mu.Unlock()
	if j.fail[req.Prompt] {
		return domain.Verdict{}, errors.Join(domain.ErrEvaluationFailed, domain.ErrUpstreamTimeout)
	}
	var v domain.Verdict
	for _, p := range req.Selection {
		v.Judgments = append(v.Judgments, domain.Judgment{Key: p.Key, Label: p.Label, Value: domain.JudgmentYes, Reason: "fine"})
	}
	return v, nil
}

type stubDetector struct{}

func (stubDetector) Detect(_ domain.Context, _ string) domain.AIOrigin {
	no := false
	return domain.AIOrigin{IsAIGenerated: &no, Confidence: 30, Reason: "casual tone"}
}

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func (m *memRunStore) Save(_ domain.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.UserID] = run
	return nil
}

func (m *memRunStore) Current(_ domain.Context, userID string) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[userID]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRunStore) Discard(_ domain.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, userID)
	return nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []domain.RunSummary
}

func (h *memHistory) Create(_ domain.Context, s domain.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append([]domain.RunSummary{s}, h.rows...)
	return nil
}

func (h *memHistory) ListByUser(_ domain.Context, userID string, limit int) ([]domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []domain.RunSummary{}
	for _, r := range h.rows {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubBudget struct {
	allowed    bool
	retryAfter time.Duration
}

func (b stubBudget) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return b.allowed, b.retryAfter, nil
}

type textRenderer struct{}

func (textRenderer) Render(w io.Writer, rep domain.Report) error {
	_, err := io.WriteString(w, "%PDF-1.3 "+rep.Title)
	return err
}
func (textRenderer) ContentType() string { return "application/pdf" }
func (textRenderer) FileName() string    { return "llm_evaluation_report.pdf" }

type memUsers struct {
	mu       sync.Mutex
	pending  map[string]domain.PendingUser
	verified map[string]domain.User
}

func (m *memUsers) EmailExists(_ domain.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p := m.pending[email]
	_, v := m.verified[email]
	return p || v, nil
}

func (m *memUsers) CreatePending(_ domain.Context, u domain.PendingUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[u.Email] = u
	return nil
}

func (m *memUsers) FindPending(_ domain.Context, email, token string) (domain.PendingUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[email]
	if !ok || p.Token != token {
		return domain.PendingUser{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memUsers) DeletePending(_ domain.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, email)
	return nil
}

func (m *memUsers) CreateVerified(_ domain.Context, u domain.User) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = "u-" + u.Email
	m.verified[u.Email] = u
	return u.ID, nil
}

func (m *memUsers) FindVerified(_ domain.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.verified[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []string
}

func (o *outbox) Send(_ domain.Context, to, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, to+"|"+body)
	return nil
}

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }
func (plainHasher) Verify(pw, enc string) bool     { return enc == "h:"+pw }

type fixture struct {
	srv     *httpserver.Server
	judge   *stubJudge
	runs    *memRunStore
	history *memHistory
	users   *memUsers
	mail    *outbox
	token   string
}

func newFixture(t *testing.T, extracted string) *fixture {
	t.Helper()
	f := &fixture{
		judge:   &stubJudge{fail: map[string]bool{}},
		runs:    &memRunStore{runs: map[string]domain.Run{}},
		history: &memHistory{},
		users:   &memUsers{pending: map[string]domain.PendingUser{}, verified: map[string]domain.User{}},
		mail:    &outbox{},
	}
	sessions, err := identity.NewSessionIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	cfg := config.Config{AppEnv: "test", MaxUploadMB: 1, AppBaseURL: "http://localhost:8080"}
	accounts := usecase.NewAccountService(f.users, f.mail, plainHasher{}, sessions, func() (string, error) { return "verify-token", nil }, cfg.AppBaseURL, time.Hour)
	f.srv = httpserver.NewServer(cfg,
		usecase.NewUploadService(stubExtractor{text: extracted}),
		usecase.NewEvaluateService(f.judge, stubDetector{}, f.runs, f.history, nil),
		usecase.NewResultService(f.runs, f.history, textRenderer{}),
		accounts,
	)
	f.users.verified["ada@example.com"] = domain.User{ID: "u-ada", Name: "Ada", Email: "ada@example.com", PasswordHash: "h:secret123"}
	_, tok, _, err := accounts.Authenticate(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	f.token = tok
	return f
}

// guarded serves h behind the identity guard.
func (f *fixture) guarded(h http.HandlerFunc) http.Handler {
	return httpserver.RequestID()(f.srv.RequireIdentity(h))
}

func (f *fixture) authed(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer "+f.token)
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}
