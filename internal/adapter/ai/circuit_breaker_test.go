package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) ChatJSON(domain.Context, string, string, int) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return `{}`, nil
}

func newTestBreaker(next domain.AIClient, threshold int) (*CircuitBreaker, *time.Time) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(next, "judge", threshold, time.Minute).(*CircuitBreaker)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestNewCircuitBreaker_DisabledReturnsClient(t *testing.T) {
	next := &scriptedClient{}
	assert.Same(t, next, NewCircuitBreaker(next, "judge", 0, time.Minute))
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	upstream := fmt.Errorf("%w: chat status 502", domain.ErrUpstreamFailure)
	next := &scriptedClient{errs: []error{upstream, upstream, upstream}}
	cb, _ := newTestBreaker(next, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.ChatJSON(ctx, "", "u", 10)
		require.ErrorIs(t, err, domain.ErrUpstreamFailure)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := cb.ChatJSON(ctx, "", "u", 10)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	assert.Equal(t, 3, next.calls)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	timeout := fmt.Errorf("%w: deadline", domain.ErrUpstreamTimeout)
	next := &scriptedClient{errs: []error{timeout, nil, timeout}}
	cb, _ := newTestBreaker(next, 2)

	for i := 0; i < 3; i++ {
		_, _ = cb.ChatJSON(context.Background(), "", "u", 10)
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_IgnoresNonUpstreamErrors(t *testing.T) {
	next := &scriptedClient{errs: []error{
		context.Canceled,
		fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument),
		fmt.Errorf("%w: bad json", domain.ErrSchemaInvalid),
	}}
	cb, _ := newTestBreaker(next, 1)
	for i := 0; i < 3; i++ {
		_, err := cb.ChatJSON(context.Background(), "", "u", 10)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 3, next.calls)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	rate := fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	next := &scriptedClient{errs: []error{rate, rate}}
	cb, clock := newTestBreaker(next, 1)
	ctx := context.Background()

	_, _ = cb.ChatJSON(ctx, "", "u", 10)
	require.Equal(t, CircuitOpen, cb.State())

	*clock = clock.Add(2 * time.Minute)
	_, err := cb.ChatJSON(ctx, "", "u", 10)
	require.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, cb.State(), "failed probe reopens")

	*clock = clock.Add(2 * time.Minute)
	_, err = cb.ChatJSON(ctx, "", "u", 10)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 3, next.calls)
}

func TestCircuitBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(&scriptedClient{}, 1)
	cb.state = CircuitOpen
	cb.openedAt = *clock

	*clock = clock.Add(2 * time.Minute)
	assert.True(t, cb.acquire())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.False(t, cb.acquire())
}

func TestCircuitBreaker_CanceledProbeStaysHalfOpen(t *testing.T) {
	next := &scriptedClient{errs: []error{context.Canceled}}
	cb, clock := newTestBreaker(next, 1)
	cb.state = CircuitOpen
	cb.openedAt = *clock
	cb.failureCount = 1

	*clock = clock.Add(2 * time.Minute)
	_, err := cb.ChatJSON(context.Background(), "", "u", 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	_, err = cb.ChatJSON(context.Background(), "", "u", 10)
	require.NoError(t, err, "next call is admitted as the probe")
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 2, next.calls)
}
