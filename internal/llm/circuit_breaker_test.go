package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentx/liveassist/internal/logging"
)

type scriptedCompleter struct {
	err   error
	calls int
}

func (s *scriptedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	next := &scriptedCompleter{err: errors.New("boom")}
	breaker := NewBreakerCompleter(next, BreakerSettings{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, logging.Discard())

	for i := 0; i < 2; i++ {
		_, err := breaker.Complete(context.Background(), "s", "u")
		assert.EqualError(t, err, "boom")
	}
	assert.Equal(t, StateOpen, breaker.State())

	_, err := breaker.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Now()
	next := &scriptedCompleter{err: errors.New("boom")}
	breaker := NewBreakerCompleter(next, BreakerSettings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second}, logging.Discard())
	breaker.now = func() time.Time { return now }

	_, _ = breaker.Complete(context.Background(), "s", "u")
	assert.Equal(t, StateOpen, breaker.State())

	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	next.err = nil
	text, err := breaker.Complete(context.Background(), "s", "u")
	assert.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	next := &scriptedCompleter{err: context.Canceled}
	breaker := NewBreakerCompleter(next, BreakerSettings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, logging.Discard())

	_, err := breaker.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())
}
