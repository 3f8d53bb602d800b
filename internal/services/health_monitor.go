package services

import (
	"context"
	"sync"
	"time"
)

// DependencyCheck checks one dependency. A nil error means healthy.
type DependencyCheck func(ctx context.Context) error

// HealthStatus represents the health of a dependency
type HealthStatus struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime int64     `json:"response_time_ms"`
	ErrorCount   int       `json:"error_count"`
	SuccessCount int       `json:"success_count"`
}

// HealthMonitor periodically runs dependency checks and keeps the latest result
// of each.
type HealthMonitor struct {
	checks   map[string]DependencyCheck
	health   map[string]*HealthStatus
	mu       sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHealthMonitor creates a monitor for the given checks. Start runs the
// background checks.
func NewHealthMonitor(checks map[string]DependencyCheck, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	monitor := &HealthMonitor{
		checks:   checks,
		health:   make(map[string]*HealthStatus),
		interval: interval,
		timeout:  5 * time.Second,
		stopChan: make(chan struct{}),
	}

	for name := range checks {
		monitor.health[name] = &HealthStatus{Healthy: true}
	}

	return monitor
}

// Start runs one check immediately and then one per interval until Stop.
func (m *HealthMonitor) Start() {
	m.CheckAll(context.Background())

	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(context.Background())
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop stops the health monitor
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// CheckAll runs every check concurrently and waits for them.
func (m *HealthMonitor) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, run := range m.checks {
		wg.Add(1)
		go func(name string, run DependencyCheck) {
			defer wg.Done()
			m.check(ctx, name, run)
		}(name, run)
	}
	wg.Wait()
}

func (m *HealthMonitor) check(ctx context.Context, name string, run DependencyCheck) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	responseTime := time.Since(start).Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.health[name]
	status.LastCheck = time.Now()
	status.ResponseTime = responseTime
	if err != nil {
		status.Healthy = false
		status.ErrorCount++
		status.LastError = err.Error()
		return
	}
	status.Healthy = true
	status.SuccessCount++
	status.LastError = ""
}

// Healthy reports whether every dependency passed its latest check.
func (m *HealthMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, status := range m.health {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// GetAllHealth returns a copy of the latest status of every dependency.
func (m *HealthMonitor) GetAllHealth() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	healthCopy := make(map[string]HealthStatus, len(m.health))
	for k, v := range m.health {
		healthCopy[k] = *v
	}
	return healthCopy
}
