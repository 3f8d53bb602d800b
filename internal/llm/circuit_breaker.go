package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failures and tries again
// after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// BreakerCompleter wraps a Completer with circuit breaker protection so a
// failing LLM backend is not hammered by every poll of every stream.
type BreakerCompleter struct {
	next     Completer
	settings BreakerSettings
	logger   *logrus.Logger
	now      func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    uint32
	successes   uint32
	lastFailure time.Time
}

// NewBreakerCompleter creates a new circuit breaker around next
func NewBreakerCompleter(next Completer, settings BreakerSettings, logger *logrus.Logger) *BreakerCompleter {
	return &BreakerCompleter{
		next:     next,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Complete executes the wrapped completion unless the breaker is open
func (b *BreakerCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if b.State() == StateOpen {
		return "", ErrCircuitOpen
	}

	text, err := b.next.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		// A cancelled poll says nothing about the backend's health.
		if !errors.Is(err, context.Canceled) {
			b.recordFailure()
		}
		return "", err
	}

	b.recordSuccess()
	return text, nil
}

// State returns the current breaker state, moving from open to half-open once
// the timeout has elapsed.
func (b *BreakerCompleter) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailure) > b.settings.Timeout {
		b.state = StateHalfOpen
		b.failures = 0
		b.successes = 0
	}
	return b.state
}

// Reset closes the breaker
func (b *BreakerCompleter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

func (b *BreakerCompleter) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.settings.FailureThreshold {
			b.state = StateOpen
			b.logger.WithField("failures", b.failures).Warn("LLM circuit breaker opened")
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.logger.Warn("LLM circuit breaker re-opened after failure in half-open state")
	}
}

func (b *BreakerCompleter) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.successes >= b.settings.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.logger.Info("LLM circuit breaker closed")
		}
	}
}
