package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	obsmetrics "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe call through.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the provider while the circuit is open.
var ErrCircuitOpen = errors.New("ai circuit open")

// CircuitBreaker wraps a chat client and stops calling the provider after
// threshold consecutive upstream failures. A batch against a dead provider
// then fails each remaining entry immediately instead of waiting out the
// request timeout per entry.
type CircuitBreaker struct {
	next      domain.AIClient
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	openedAt     time.Time
	probing      bool
}

// NewCircuitBreaker wraps next. A threshold of zero or less returns next unchanged.
func NewCircuitBreaker(next domain.AIClient, name string, threshold int, cooldown time.Duration) domain.AIClient {
	if threshold <= 0 {
		return next
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{next: next, name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ChatJSON forwards to the wrapped client unless the circuit is open.
func (cb *CircuitBreaker) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if !cb.acquire() {
		return "", fmt.Errorf("op=ai.%s: %w: %w", cb.name, ErrCircuitOpen, domain.ErrUpstreamRateLimit)
	}
	out, err := cb.next.ChatJSON(ctx, systemPrompt, userPrompt, maxTokens)
	cb.record(err)
	return out, err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.setState(CircuitHalfOpen)
		cb.probing = true
		slog.Info("circuit breaker half-open", slog.String("client", cb.name))
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.probing = false
	}
	if err == nil {
		if cb.state != CircuitClosed {
			slog.Info("circuit breaker closed", slog.String("client", cb.name))
		}
		cb.setState(CircuitClosed)
		cb.failureCount = 0
		return
	}
	if !countsAsUpstreamFailure(err) {
		// A neutral outcome leaves the state as is; a half-open circuit
		// admits the next probe.
		return
	}

	cb.failureCount++
	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.threshold {
		cb.setState(CircuitOpen)
		cb.openedAt = cb.now()
		slog.Warn("circuit breaker opened",
			slog.String("client", cb.name),
			slog.Int("failure_count", cb.failureCount),
			slog.Int("threshold", cb.threshold),
			slog.Duration("cooldown", cb.cooldown))
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	obsmetrics.ObserveCircuitState(cb.name, int(s))
}

// countsAsUpstreamFailure reports errors that say the provider is unhealthy.
// Caller cancellation and bad replies do not.
func countsAsUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrSchemaInvalid) || errors.Is(err, domain.ErrInvalidArgument) {
		return false
	}
	return errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, domain.ErrUpstreamRateLimit) ||
		errors.Is(err, domain.ErrUpstreamFailure) || errors.Is(err, context.DeadlineExceeded)
}
