package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrConversationBusy is returned when another relay session already holds
// the conversation.
var ErrConversationBusy = errors.New("conversation already has an active relay session")

const leaseKeyFormat = "liveassist:relay:%s"

// Lease is the exclusive right of one relay session to a conversation.
type Lease interface {
	// Refresh extends the lease. It fails once the lease was lost.
	Refresh(ctx context.Context) error
	// Release gives the conversation up. Safe to call more than once.
	Release(ctx context.Context) error
}

// Registry hands out at most one lease per conversation. Leases expire when
// not refreshed, so a crashed holder cannot block a conversation forever.
type Registry interface {
	Acquire(ctx context.Context, conversationID string) (Lease, error)
}

// MemoryRegistry keeps leases in process.
type MemoryRegistry struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	leases map[string]memoryEntry
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryRegistry creates an in-process registry.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryRegistry{
		ttl:    ttl,
		now:    time.Now,
		leases: make(map[string]memoryEntry),
	}
}

func (r *MemoryRegistry) Acquire(_ context.Context, conversationID string) (Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry, ok := r.leases[conversationID]; ok && now.Before(entry.expiresAt) {
		return nil, ErrConversationBusy
	}

	token := uuid.New().String()
	r.leases[conversationID] = memoryEntry{token: token, expiresAt: now.Add(r.ttl)}
	return &memoryLease{registry: r, conversationID: conversationID, token: token}, nil
}

// Active reports whether the conversation is currently held.
func (r *MemoryRegistry) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.leases[conversationID]
	return ok && r.now().Before(entry.expiresAt)
}

type memoryLease struct {
	registry       *MemoryRegistry
	conversationID string
	token          string
}

func (l *memoryLease) Refresh(_ context.Context) error {
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.leases[l.conversationID]
	if !ok || entry.token != l.token {
		return ErrConversationBusy
	}
	entry.expiresAt = r.now().Add(r.ttl)
	r.leases[l.conversationID] = entry
	return nil
}

func (l *memoryLease) Release(_ context.Context) error {
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.leases[l.conversationID]; ok && entry.token == l.token {
		delete(r.leases, l.conversationID)
	}
	return nil
}

// refreshScript extends the key only while it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// releaseScript is an atomic check-and-delete.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisRegistry shares leases between relay processes through Redis.
type RedisRegistry struct {
	rc  redis.UniversalClient
	ttl time.Duration
}

// NewRedisRegistry creates a registry on top of rc.
func NewRedisRegistry(rc redis.UniversalClient, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRegistry{rc: rc, ttl: ttl}
}

func (r *RedisRegistry) Acquire(ctx context.Context, conversationID string) (Lease, error) {
	key := fmt.Sprintf(leaseKeyFormat, conversationID)
	token := uuid.New().String()

	ok, err := r.rc.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SetNX error for key %s: %w", key, err)
	}
	if !ok {
		return nil, ErrConversationBusy
	}
	return &redisLease{registry: r, key: key, token: token}, nil
}

type redisLease struct {
	registry *RedisRegistry
	key      string
	token    string
}

func (l *redisLease) Refresh(ctx context.Context) error {
	ttl := l.registry.ttl.Milliseconds()
	extended, err := refreshScript.Run(ctx, l.registry.rc, []string{l.key}, l.token, ttl).Int64()
	if err != nil {
		return fmt.Errorf("redis refresh error for key %s: %w", l.key, err)
	}
	if extended == 0 {
		return ErrConversationBusy
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.registry.rc, []string{l.key}, l.token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release error for key %s: %w", l.key, err)
	}
	return nil
}
