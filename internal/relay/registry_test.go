package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryExclusive(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry(time.Minute)

	lease, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)

	_, err = registry.Acquire(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrConversationBusy)

	other, err := registry.Acquire(ctx, "conv-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)

	// A stale lease must not free the conversation for its new holder.
	require.NoError(t, lease.Release(ctx))
	assert.True(t, registry.Active("conv-1"))
	assert.ErrorIs(t, lease.Refresh(ctx), ErrConversationBusy)
	assert.NoError(t, again.Refresh(ctx))
}

func TestMemoryRegistryExpiry(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry(30 * time.Second)
	now := time.Now()
	registry.now = func() time.Time { return now }

	stale, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	assert.False(t, registry.Active("conv-1"))

	_, err = registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Refresh(ctx), ErrConversationBusy)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisRegistryExclusive(t *testing.T) {
	ctx := context.Background()
	mr, rc := newTestRedis(t)
	registry := NewRedisRegistry(rc, 30*time.Second)

	lease, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("liveassist:relay:conv-1"))

	_, err = registry.Acquire(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrConversationBusy)

	require.NoError(t, lease.Refresh(ctx))
	assert.Equal(t, 30*time.Second, mr.TTL("liveassist:relay:conv-1"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("liveassist:relay:conv-1"))
	require.NoError(t, lease.Release(ctx))

	_, err = registry.Acquire(ctx, "conv-1")
	assert.NoError(t, err)
}

func TestRedisRegistryLeaseExpires(t *testing.T) {
	ctx := context.Background()
	mr, rc := newTestRedis(t)
	registry := NewRedisRegistry(rc, 10*time.Second)

	stale, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)

	mr.FastForward(11 * time.Second)

	current, err := registry.Acquire(ctx, "conv-1")
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Refresh(ctx), ErrConversationBusy)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("liveassist:relay:conv-1"))

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("liveassist:relay:conv-1"))
}
