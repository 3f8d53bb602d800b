package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitorCheckAll(t *testing.T) {
	var dbDown atomic.Bool
	monitor := NewHealthMonitor(map[string]DependencyCheck{
		"database": func(context.Context) error {
			if dbDown.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
		"redis": func(context.Context) error { return nil },
	}, time.Minute)

	assert.True(t, monitor.Healthy(), "unchecked dependencies count as healthy")

	monitor.CheckAll(context.Background())
	assert.True(t, monitor.Healthy())

	dbDown.Store(true)
	monitor.CheckAll(context.Background())
	assert.False(t, monitor.Healthy())

	health := monitor.GetAllHealth()
	require.Contains(t, health, "database")
	assert.False(t, health["database"].Healthy)
	assert.Equal(t, "connection refused", health["database"].LastError)
	assert.Equal(t, 1, health["database"].ErrorCount)
	assert.Equal(t, 1, health["database"].SuccessCount)
	assert.Equal(t, 2, health["redis"].SuccessCount)

	dbDown.Store(false)
	monitor.CheckAll(context.Background())
	assert.True(t, monitor.Healthy())
	assert.Empty(t, monitor.GetAllHealth()["database"].LastError)
}

func TestHealthMonitorCheckTimeout(t *testing.T) {
	monitor := NewHealthMonitor(map[string]DependencyCheck{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, time.Minute)
	monitor.timeout = 20 * time.Millisecond

	monitor.CheckAll(context.Background())

	assert.False(t, monitor.Healthy())
	assert.Equal(t, context.DeadlineExceeded.Error(), monitor.GetAllHealth()["slow"].LastError)
}

func TestHealthMonitorStartStop(t *testing.T) {
	var calls atomic.Int32
	monitor := NewHealthMonitor(map[string]DependencyCheck{
		"assist": func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}, 10*time.Millisecond)

	monitor.Start()
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	monitor.Stop()
	monitor.Stop()
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), stopped+1)
}
