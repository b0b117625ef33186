package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "session"

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=8,max=256"`
	Confirm  string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// trim strips surrounding whitespace before validation.
func (r *signupRequest) trim() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *loginRequest) trim() { r.Email = strings.TrimSpace(r.Email) }

// sessionToken reads the session cookie, falling back to a bearer token.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.Cfg.IsDev() && !s.Cfg.IsTest(),
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
		MaxAge:   maxAge,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.Cfg.IsDev() && !s.Cfg.IsTest(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// RequireIdentity rejects requests without a valid session with 401 and
// installs the identity on the request context otherwise.
func (s *Server) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Accounts.Identify(sessionToken(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		noteUser(r, id.UserID)
		ctx := usecase.WithIdentity(r.Context(), id)
		ctx = obsctx.ContextWithAttrs(ctx, slog.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignupHandler stores a pending account and mails the verification link.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		req.trim()
		if details := validate(req); details != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), details)
			return
		}
		err := s.Accounts.Signup(r.Context(), usecase.SignupInput{Name: req.Name, Email: req.Email, Password: req.Password, Confirm: req.Confirm})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("signup pending verification", slog.String("email", usecase.NormalizeEmail(req.Email)))
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "pending_verification",
			"message": "Check your email to verify your account.",
		})
	}
}

// VerifyHandler completes a signup from the mailed link.
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		id, err := s.Accounts.Verify(r.Context(), q.Get("email"), q.Get("token"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("account verified", slog.String("user_id", id.UserID))
		writeJSON(w, http.StatusOK, map[string]any{"status": "verified", "user": id})
	}
}

// LoginHandler checks credentials and sets the session cookie. The token is
// also returned for bearer use.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		req.trim()
		if details := validate(req); details != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), details)
			return
		}
		id, token, exp, err := s.Accounts.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.setSessionCookie(w, token, exp)
		writeJSON(w, http.StatusOK, map[string]any{"user": id, "token": token, "expires_at": exp.UTC()})
	}
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the authenticated identity.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := usecase.CurrentIdentity(r.Context())
		if !ok {
			writeError(w, r, fmt.Errorf("%w: sign in required", domain.ErrUnauthenticated), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": id})
	}
}
