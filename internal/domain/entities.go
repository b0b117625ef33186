package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Pipeline errors. Extraction and no-entries conditions halt one upload;
// evaluation failures are per entry.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction error")
	ErrNoEntriesFound    = errors.New("no entries found")
	ErrEvaluationFailed  = errors.New("evaluation failed")
)

// Account errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenExpired       = errors.New("verification token expired")
)

// Context is an alias to allow decoupling from std context in domain.
type Context = context.Context

// Entry is one prompt/response pair taken from a document, in document order.
type Entry struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// RunMode distinguishes a manual single-entry run from a document batch.
type RunMode string

const (
	RunModeManual RunMode = "manual"
	RunModeBatch  RunMode = "batch"
)

// Record is the outcome of one successfully evaluated entry. Origin is set
// only when AI-origin detection was requested for the run.
type Record struct {
	Index    int       `json:"index"`
	Prompt   string    `json:"prompt"`
	Response string    `json:"response"`
	Verdict  Verdict   `json:"verdict"`
	Origin   *AIOrigin `json:"ai_origin,omitempty"`
}

// Run is the accumulated result of one user-initiated evaluate action.
// Invariants: len(Records)+Failed == Entries; Records keep entry order.
type Run struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Mode       RunMode   `json:"mode"`
	Source     string    `json:"source,omitempty"`
	Parameters []string  `json:"parameters"`
	DetectAI   bool      `json:"detect_ai"`
	Entries    int       `json:"entries"`
	Failed     int       `json:"failed"`
	Records    []Record  `json:"records"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunSummary is the persisted, record-free view of a run.
type RunSummary struct {
	ID         string
	UserID     string
	Mode       RunMode
	Source     string
	Parameters []string
	DetectAI   bool
	Entries    int
	Records    int
	Failed     int
	CreatedAt  time.Time
}

// Summary strips records from the run.
func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		UserID:     r.UserID,
		Mode:       r.Mode,
		Source:     r.Source,
		Parameters: append([]string(nil), r.Parameters...),
		DetectAI:   r.DetectAI,
		Entries:    r.Entries,
		Records:    len(r.Records),
		Failed:     r.Failed,
		CreatedAt:  r.CreatedAt,
	}
}

// Identity is an authenticated user as seen by the evaluation pipeline.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Session carries the per-request state the pipeline needs. It is built by
// the orchestrating layer and passed explicitly; nothing is kept globally.
type Session struct {
	Identity  Identity
	Selection Selection
	DetectAI  bool
}

// PendingUser is a signup awaiting e-mail verification.
type PendingUser struct {
	Name         string
	Email        string
	PasswordHash string
	Token        string
	TokenExpiry  time.Time
	CreatedAt    time.Time
}

// User is a verified account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	VerifiedAt   time.Time
}

// Ports

// TextExtractor turns an uploaded document into UTF-8 text.
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

// AIClient sends one instruction to an external model and returns the raw JSON reply.
type AIClient interface {
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Evaluator scores a response against the selected parameters. Failures wrap
// ErrEvaluationFailed.
type Evaluator interface {
	Evaluate(ctx Context, req EvaluationRequest) (Verdict, error)
}

// OriginDetector estimates whether a text is AI-generated. It never fails:
// on any error it returns UnknownOrigin().
type OriginDetector interface {
	Detect(ctx Context, text string) AIOrigin
}

// RunStore keeps the current run per user.
type RunStore interface {
	Save(ctx Context, run Run) error
	Current(ctx Context, userID string) (Run, error)
	Discard(ctx Context, userID string) error
}

// RunHistoryRepository persists run summaries.
type RunHistoryRepository interface {
	Create(ctx Context, s RunSummary) error
	ListByUser(ctx Context, userID string, limit int) ([]RunSummary, error)
}

// UserRepository stores pending and verified accounts.
type UserRepository interface {
	EmailExists(ctx Context, email string) (bool, error)
	CreatePending(ctx Context, u PendingUser) error
	FindPending(ctx Context, email, token string) (PendingUser, error)
	DeletePending(ctx Context, email string) error
	CreateVerified(ctx Context, u User) (string, error)
	FindVerified(ctx Context, email string) (User, error)
}

// Notifier delivers a message to a recipient.
type Notifier interface {
	Send(ctx Context, recipient, subject, body string) error
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
}

// SessionIssuer signs and validates session tokens.
type SessionIssuer interface {
	Issue(id Identity) (token string, expiresAt time.Time, err error)
	Parse(token string) (Identity, error)
}

// BudgetLimiter admits runs against a per-user evaluation budget.
type BudgetLimiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}
