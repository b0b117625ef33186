package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(_ domain.Context, _ string, _ []byte) (string, error) {
	return s.text, s.err
}

// stubJudge fails for prompts listed in fail and answers Y otherwise.
type stubJudge struct {
	fail  map[string]bool
	calls []domain.EvaluationRequest
}

func (j *stubJudge) Evaluate(_ domain.Context, req domain.EvaluationRequest) (domain.Verdict, error) {
	j.calls = append(j.calls, req)
	if err := req.Validate(); err != nil {
		return domain.Verdict{}, err
	}
	if j.fail[req.Prompt] {
		return domain.Verdict{}, errors.Join(domain.ErrEvaluationFailed, errors.New("judge down"))
	}
	var v domain.Verdict
	for _, p := range req.Selection {
		v.Judgments = append(v.Judgments, domain.Judgment{Key: p.Key, Label: p.Label, Value: domain.JudgmentYes, Reason: "ok"})
	}
	return v, nil
}

type stubDetector struct{ texts []string }

func (d *stubDetector) Detect(_ domain.Context, text string) domain.AIOrigin {
	d.texts = append(d.texts, text)
	yes := true
	return domain.AIOrigin{IsAIGenerated: &yes, Confidence: 80, Reason: "pattern"}
}

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]domain.Run
	err  error
}

func newMemRunStore() *memRunStore { return &memRunStore{runs: map[string]domain.Run{}} }

func (m *memRunStore) Save(_ domain.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
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
	rows []domain.RunSummary
	err  error
}

func (h *memHistory) Create(_ domain.Context, s domain.RunSummary) error {
	if h.err != nil {
		return h.err
	}
	h.rows = append(h.rows, s)
	return nil
}

func (h *memHistory) ListByUser(_ domain.Context, userID string, limit int) ([]domain.RunSummary, error) {
	var out []domain.RunSummary
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
	err        error
	costs      []int64
}

func (b *stubBudget) Allow(_ context.Context, _ string, cost int64) (bool, time.Duration, error) {
	b.costs = append(b.costs, cost)
	return b.allowed, b.retryAfter, b.err
}

type stubRenderer struct{ err error }

func (r stubRenderer) Render(w io.Writer, rep domain.Report) error {
	if r.err != nil {
		return r.err
	}
	_, err := io.WriteString(w, rep.Title)
	return err
}
func (stubRenderer) ContentType() string { return "application/pdf" }
func (stubRenderer) FileName() string { return "report.pdf" }

type memUsers struct {
	pending  map[string]domain.PendingUser
	verified map[string]domain.User
	seq      int
}

func newMemUsers() *memUsers {
	return &memUsers{pending: map[string]domain.PendingUser{}, verified: map[string]domain.User{}}
}

func (m *memUsers) EmailExists(_ domain.Context, email string) (bool, error) {
	_, p := m.pending[email]
	_, v := m.verified[email]
	return p || v, nil
}

func (m *memUsers) CreatePending(_ domain.Context, u domain.PendingUser) error {
	m.pending[u.Email] = u
	return nil
}

func (m *memUsers) FindPending(_ domain.Context, email, token string) (domain.PendingUser, error) {
	p, ok := m.pending[email]
	if !ok || p.Token != token {
		return domain.PendingUser{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memUsers) DeletePending(_ domain.Context, email string) error {
	delete(m.pending, email)
	return nil
}

func (m *memUsers) CreateVerified(_ domain.Context, u domain.User) (string, error) {
	m.seq++
	u.ID = "user-" + string(rune('0'+m.seq))
	m.verified[u.Email] = u
	return u.ID, nil
}

func (m *memUsers) FindVerified(_ domain.Context, email string) (domain.User, error) {
	u, ok := m.verified[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type recordingNotifier struct {
	to, subject, body string
	err               error
}

func (n *recordingNotifier) Send(_ domain.Context, to, subject, body string) error {
	n.to, n.subject, n.body = to, subject, body
	return n.err
}

// plainHasher stands in for argon2 in tests.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }
func (plainHasher) Verify(pw, enc string) bool { return enc == "h:"+pw }

type stubSessions struct{}

func (stubSessions) Issue(id domain.Identity) (string, time.Time, error) {
	return "tok:" + id.UserID, time.Unix(0, 0), nil
}

func (stubSessions) Parse(token string) (domain.Identity, error) {
	if len(token) > 4 && token[:4] == "tok:" {
		return domain.Identity{UserID: token[4:]}, nil
	}
	return domain.Identity{}, errors.New("bad token")
}
