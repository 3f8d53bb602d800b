package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

const latencyWindow = 100

// CompletionStats is a snapshot of completion traffic.
type CompletionStats struct {
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	Rejected     int64   `json:"rejected"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// MetricsCompleter counts completions and keeps a rolling latency window.
type MetricsCompleter struct {
	next Completer

	mu        sync.RWMutex
	requests  int64
	errors    int64
	rejected  int64
	latencies []time.Duration
}

// NewMetricsCompleter wraps next.
func NewMetricsCompleter(next Completer) *MetricsCompleter {
	return &MetricsCompleter{next: next}
}

// Complete forwards to the wrapped completer and records the outcome.
func (m *MetricsCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	answer, err := m.next.Complete(ctx, systemPrompt, userPrompt)
	m.record(time.Since(start), err)
	return answer, err
}

func (m *MetricsCompleter) record(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	switch {
	case errors.Is(err, ErrCircuitOpen):
		// Rejected calls never reached the model, keep them out of the latency window.
		m.rejected++
		return
	case err != nil:
		m.errors++
	}

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > latencyWindow {
		m.latencies = m.latencies[1:]
	}
}

// Snapshot returns the current counters.
func (m *MetricsCompleter) Snapshot() CompletionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := CompletionStats{
		Requests: m.requests,
		Errors:   m.errors,
		Rejected: m.rejected,
	}
	if len(m.latencies) > 0 {
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		stats.AvgLatencyMS = float64(total.Milliseconds()) / float64(len(m.latencies))
	}
	return stats
}

// Reset clears all counters.
func (m *MetricsCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests, m.errors, m.rejected = 0, 0, 0
	m.latencies = nil
}
