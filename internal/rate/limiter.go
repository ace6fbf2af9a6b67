package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "rr:"

// Config holds refresh throttle tuning parameters.
type Config struct {
	Enabled     bool
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter is satisfied by both counter backends.
type Limiter interface {
	CheckRefresh(ctx context.Context, principalID string) error
}

// RedisLimiter counts refresh attempts in Redis so the budget is shared by
// every process using the same server.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedis creates a [RedisLimiter] backed by the given Redis client.
func NewRedis(redisClient redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one attempt for principalID and fails once the window
// budget is spent.
func (l *RedisLimiter) CheckRefresh(ctx context.Context, principalID string) error {
	if !l.config.Enabled {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKeyPrefix+principalID, l.config.Cooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process counterpart of [RedisLimiter].
type MemoryLimiter struct {
	mu      sync.Mutex
	config  Config
	now     func() time.Time
	windows map[string]*window
}

// NewMemory creates a [MemoryLimiter]. A nil now uses time.Now.
func NewMemory(cfg Config, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		config:  cfg,
		now:     now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) CheckRefresh(_ context.Context, principalID string) error {
	if !l.config.Enabled {
		return nil
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[principalID]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.config.Cooldown)}
		l.windows[principalID] = w
		l.sweep(now)
	}
	w.count++
	if w.count > l.config.MaxAttempts {
		return ErrRateLimited
	}
	return nil
}

// sweep drops finished windows; called with mu held.
func (l *MemoryLimiter) sweep(now time.Time) {
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
		}
	}
}
