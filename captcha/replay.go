package captcha

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard records tokens consumed by a successful verification.
// Consume is insert-if-absent: it returns true only for the first caller
// presenting id before expiresAt.
type ReplayGuard interface {
	Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// MemoryReplayGuard is a mutex-guarded set of token ids. Entries whose token
// has expired are swept on insert; such tokens can never verify again.
type MemoryReplayGuard struct {
	mu         sync.Mutex
	used       map[string]time.Time
	maxEntries int
	now        func() time.Time
}

// NewMemoryReplayGuard returns a guard holding at most maxEntries live ids.
func NewMemoryReplayGuard(maxEntries int) *MemoryReplayGuard {
	if maxEntries <= 0 {
		maxEntries = DefaultConfig().ReplayGuardMaxEntries
	}
	return &MemoryReplayGuard{
		used:       make(map[string]time.Time),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Consume implements ReplayGuard. When the set is full of live ids the guard
// refuses new ones rather than forgetting old ones.
func (g *MemoryReplayGuard) Consume(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	now := g.now()
	if !now.Before(expiresAt) {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.used[id]; ok && now.Before(exp) {
		return false, nil
	}
	if len(g.used) >= g.maxEntries {
		g.sweepLocked(now)
		if len(g.used) >= g.maxEntries {
			return false, fmt.Errorf("captcha: replay guard full (%d entries)", g.maxEntries)
		}
	}
	g.used[id] = expiresAt
	return true, nil
}

// Len returns the number of ids currently held.
func (g *MemoryReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.used)
}

// Sweep drops ids whose token has expired.
func (g *MemoryReplayGuard) Sweep() {
	g.mu.Lock()
	g.sweepLocked(g.now())
	g.mu.Unlock()
}

func (g *MemoryReplayGuard) sweepLocked(now time.Time) {
	for id, exp := range g.used {
		if !now.Before(exp) {
			delete(g.used, id)
		}
	}
}

// RedisReplayGuardPrefix namespaces consumed token ids in redis.
const RedisReplayGuardPrefix = "captcha:used:"

// RedisReplayGuard shares consumed ids between processes. Each key lives
// until the token it names expires.
type RedisReplayGuard struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisReplayGuard wraps an existing client.
func NewRedisReplayGuard(client redis.UniversalClient) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, now: time.Now}
}

func (g *RedisReplayGuard) key(id string) string {
	return RedisReplayGuardPrefix + id
}

// Consume implements ReplayGuard with SET NX.
func (g *RedisReplayGuard) Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(g.now())
	if ttl <= 0 {
		return false, nil
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := g.client.SetNX(ctx, g.key(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("captcha: replay guard: %w", err)
	}
	return ok, nil
}

// noReplayGuard accepts every id; tokens stay reusable until they expire.
type noReplayGuard struct{}

func (noReplayGuard) Consume(context.Context, string, time.Time) (bool, error) { return true, nil }
