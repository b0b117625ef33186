package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

// SignupInput carries the signup form.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

// AccountService is the identity provider: signup with e-mail verification,
// password login and session token validation.
type AccountService struct {
	Users           domain.UserRepository
	Notifier        domain.Notifier
	Hasher          domain.PasswordHasher
	Sessions        domain.SessionIssuer
	NewToken        func() (string, error)
	BaseURL         string
	VerificationTTL time.Duration
	Now             func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(users domain.UserRepository, n domain.Notifier, h domain.PasswordHasher, s domain.SessionIssuer, newToken func() (string, error), baseURL string, verificationTTL time.Duration) AccountService {
	if verificationTTL <= 0 {
		verificationTTL = 24 * time.Hour
	}
	return AccountService{
		Users:           users,
		Notifier:        n,
		Hasher:          h,
		Sessions:        s,
		NewToken:        newToken,
		BaseURL:         strings.TrimRight(baseURL, "/"),
		VerificationTTL: verificationTTL,
		Now:             time.Now,
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Signup stores a pending account and sends the verification link. A
// notifier failure is returned; the pending record stays so the link can be
// re-sent by signing up again after it expires.
func (s AccountService) Signup(ctx domain.Context, in SignupInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Confirm == "" {
		return fmt.Errorf("%w: all fields are required", domain.ErrInvalidArgument)
	}
	if in.Password != in.Confirm {
		return fmt.Errorf("%w: passwords do not match", domain.ErrInvalidArgument)
	}
	exists, err := s.Users.EmailExists(ctx, in.Email)
	if err != nil {
		return fmt.Errorf("op=account.Signup: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("op=account.Signup: %w", err)
	}
	token, err := s.NewToken()
	if err != nil {
		return fmt.Errorf("op=account.Signup: %w", err)
	}
	now := s.now()
	pending := domain.PendingUser{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Token:        token,
		TokenExpiry:  now.Add(s.VerificationTTL),
		CreatedAt:    now,
	}
	if err := s.Users.CreatePending(ctx, pending); err != nil {
		return fmt.Errorf("op=account.Signup: %w", err)
	}
	if err := s.Notifier.Send(ctx, in.Email, "Verify your email", s.verificationBody(in.Name, in.Email, token)); err != nil {
		slog.Error("verification email failed", slog.String("email", in.Email), slog.Any("error", err))
		return fmt.Errorf("op=account.Signup: send verification: %w", err)
	}
	return nil
}

// VerificationLink builds the link mailed to a new user.
func (s AccountService) VerificationLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return s.BaseURL + "/v1/auth/verify?" + q.Encode()
}

func (s AccountService) verificationBody(name, email, token string) string {
	link := s.VerificationLink(email, token)
	return fmt.Sprintf(`<p>Hi %s,</p>
<p>Please verify your email by clicking the link below:</p>
<p><a href="%s">%s</a></p>
<p>This link expires in %s.</p>`, html.EscapeString(name), html.EscapeString(link), html.EscapeString(link), s.VerificationTTL)
}

// Verify moves a pending account to the verified users. An expired token
// removes the pending account.
func (s AccountService) Verify(ctx domain.Context, email, token string) (domain.Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || token == "" {
		return domain.Identity{}, fmt.Errorf("%w: email and token are required", domain.ErrInvalidArgument)
	}
	p, err := s.Users.FindPending(ctx, email, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("%w: invalid verification link", domain.ErrNotFound)
		}
		return domain.Identity{}, fmt.Errorf("op=account.Verify: %w", err)
	}
	now := s.now()
	if now.After(p.TokenExpiry) {
		if err := s.Users.DeletePending(ctx, email); err != nil {
			slog.Warn("failed to remove expired pending user", slog.String("email", email), slog.Any("error", err))
		}
		return domain.Identity{}, fmt.Errorf("%w: sign up again", domain.ErrTokenExpired)
	}
	id, err := s.Users.CreateVerified(ctx, domain.User{Name: p.Name, Email: p.Email, PasswordHash: p.PasswordHash, VerifiedAt: now})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("op=account.Verify: %w", err)
	}
	if err := s.Users.DeletePending(ctx, email); err != nil {
		slog.Warn("failed to remove pending user", slog.String("email", email), slog.Any("error", err))
	}
	return domain.Identity{UserID: id, Email: p.Email, Name: p.Name}, nil
}

// Authenticate checks credentials against verified users and issues a session token.
func (s AccountService) Authenticate(ctx domain.Context, email, password string) (domain.Identity, string, time.Time, error) {
	email = NormalizeEmail(email)
	u, err := s.Users.FindVerified(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, "", time.Time{}, domain.ErrInvalidCredentials
		}
		return domain.Identity{}, "", time.Time{}, fmt.Errorf("op=account.Authenticate: %w", err)
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		return domain.Identity{}, "", time.Time{}, domain.ErrInvalidCredentials
	}
	id := domain.Identity{UserID: u.ID, Email: u.Email, Name: u.Name}
	token, exp, err := s.Sessions.Issue(id)
	if err != nil {
		return domain.Identity{}, "", time.Time{}, fmt.Errorf("op=account.Authenticate: %w", err)
	}
	return id, token, exp, nil
}

// Identify resolves a session token.
func (s AccountService) Identify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing session", domain.ErrUnauthenticated)
	}
	id, err := s.Sessions.Parse(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return id, nil
}

func (s AccountService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

type identityKey struct{}

// WithIdentity installs the authenticated identity on ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// CurrentIdentity returns the identity installed by the auth middleware.
func CurrentIdentity(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok && id.UserID != ""
}
