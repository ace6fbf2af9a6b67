package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldRefreshToken = "refreshToken"
	fieldCSRFToken    = "csrfToken"

	// DefaultRedisPrefix is the key namespace used when none is configured.
	DefaultRedisPrefix = "tokens"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// HSET on an existing key keeps its TTL, so rotation never extends the
// session lifetime set by Put.
const updateCSRFScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "csrfToken", ARGV[1])
return 1
`

var updateCSRFLua = redis.NewScript(updateCSRFScript)

const rotateCSRFScript = `
local current = redis.call("HMGET", KEYS[1], "refreshToken", "csrfToken")
if not current[1] then
  return 0
end
if current[1] ~= ARGV[1] or current[2] ~= ARGV[2] then
  return 2
end
redis.call("HSET", KEYS[1], "csrfToken", ARGV[3])
return 3
`

var rotateCSRFLua = redis.NewScript(rotateCSRFScript)

// RedisStore keeps one hash per principal under "<prefix>:<principalID>" with
// the fields refreshToken and csrfToken. Put sets the key TTL; nothing else
// touches it.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var (
	_ Store   = (*RedisStore)(nil)
	_ Rotator = (*RedisStore)(nil)
	_ Pinger  = (*RedisStore)(nil)
)

// NewRedisStore creates a [RedisStore]. ttl is the refresh-token max age and
// must be positive; an empty prefix falls back to [DefaultRedisPrefix].
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("redis store ttl must be > 0")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) key(principalID string) string {
	return s.prefix + ":" + principalID
}

// Get returns the stored record or [ErrNotFound] once the key is gone.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Get(ctx context.Context, principalID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	opaque, ok := fields[fieldRefreshToken]
	if !ok || opaque == "" {
		return nil, ErrNotFound
	}

	return &Record{
		OpaqueValue: opaque,
		CSRFToken:   fields[fieldCSRFToken],
	}, nil
}

// Put overwrites the record and resets its TTL in one MULTI/EXEC.
//
//	Performance: 1 round-trip (HSET + EXPIRE).
func (s *RedisStore) Put(ctx context.Context, principalID, opaqueValue, csrfToken string) error {
	key := s.key(principalID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldRefreshToken, opaqueValue, fieldCSRFToken, csrfToken)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the record. Deleting an absent principal is not an error.
func (s *RedisStore) Delete(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// UpdateCSRF replaces the CSRF token without touching the TTL.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) UpdateCSRF(ctx context.Context, principalID, csrfToken string) error {
	updated, err := updateCSRFLua.Run(ctx, s.redis, []string{s.key(principalID)}, csrfToken).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if updated == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// RotateCSRF atomically swaps the CSRF token when the stored record still
// matches opaqueValue and expectedCSRF.
//
//	Performance: 1 Lua EVALSHA (compare-and-swap).
func (s *RedisStore) RotateCSRF(ctx context.Context, principalID, opaqueValue, expectedCSRF, nextCSRF string) error {
	code, err := rotateCSRFLua.Run(
		ctx,
		s.redis,
		[]string{s.key(principalID)},
		opaqueValue,
		expectedCSRF,
		nextCSRF,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
