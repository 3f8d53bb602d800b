package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sequenceCompleter struct {
	errs  []error
	delay time.Duration
}

func (s *sequenceCompleter) Complete(context.Context, string, string) (string, error) {
	time.Sleep(s.delay)
	if len(s.errs) == 0 {
		return "[]", nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return "", err
}

func TestMetricsCompleter(t *testing.T) {
	next := &sequenceCompleter{
		errs:  []error{nil, errors.New("boom"), ErrCircuitOpen},
		delay: 2 * time.Millisecond,
	}
	metrics := NewMetricsCompleter(next)

	for i := 0; i < 4; i++ {
		_, _ = metrics.Complete(context.Background(), "sys", "user")
	}

	stats := metrics.Snapshot()
	assert.Equal(t, int64(4), stats.Requests)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.GreaterOrEqual(t, stats.AvgLatencyMS, 2.0)

	metrics.Reset()
	assert.Equal(t, CompletionStats{}, metrics.Snapshot())
}

func TestMetricsCompleterLatencyWindow(t *testing.T) {
	metrics := NewMetricsCompleter(&sequenceCompleter{})
	for i := 0; i < latencyWindow+20; i++ {
		metrics.record(time.Millisecond, nil)
	}
	assert.Len(t, metrics.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+20), metrics.Snapshot().Requests)
}
