package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisStore(rdb, "", ttl)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	return s, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestNewRedisStoreValidation(t *testing.T) {
	if _, err := NewRedisStore(nil, "", time.Minute); err == nil {
		t.Fatal("expected nil client to fail")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := NewRedisStore(rdb, "", 0); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}

func TestRedisStoreLayout(t *testing.T) {
	s, mr, done := newRedisStoreTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if err := s.Put(ctx, "u1", "opaque", "csrf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := mr.HGet("tokens:u1", "refreshToken"); got != "opaque" {
		t.Fatalf("unexpected refreshToken field %q", got)
	}
	if got := mr.HGet("tokens:u1", "csrfToken"); got != "csrf" {
		t.Fatalf("unexpected csrfToken field %q", got)
	}
	if ttl := mr.TTL("tokens:u1"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}
}

func TestRedisStorePutOverwriteAndDelete(t *testing.T) {
	s, _, done := newRedisStoreTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Put(ctx, "u1", "o1", "c1")
	_ = s.Put(ctx, "u1", "o2", "c2")

	rec, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.OpaqueValue != "o2" || rec.CSRFToken != "c2" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreUpdateCSRFKeepsTTL(t *testing.T) {
	s, mr, done := newRedisStoreTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if err := s.UpdateCSRF(ctx, "ghost", "c"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if mr.Exists("tokens:ghost") {
		t.Fatal("update of absent principal must not create a key")
	}

	_ = s.Put(ctx, "u1", "o", "c1")
	mr.FastForward(30 * time.Minute)

	if err := s.UpdateCSRF(ctx, "u1", "c2"); err != nil {
		t.Fatalf("update csrf: %v", err)
	}
	if ttl := mr.TTL("tokens:u1"); ttl != 30*time.Minute {
		t.Fatalf("expected remaining ttl 30m, got %v", ttl)
	}
	rec, _ := s.Get(ctx, "u1")
	if rec.CSRFToken != "c2" || rec.OpaqueValue != "o" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	s, mr, done := newRedisStoreTest(t, time.Second)
	defer done()
	ctx := context.Background()

	_ = s.Put(ctx, "u1", "o", "c")
	mr.FastForward(2 * time.Second)

	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
	if err := s.UpdateCSRF(ctx, "u1", "c2"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound after ttl, got %v", err)
	}
}

func TestRedisStoreRotateCSRF(t *testing.T) {
	s, _, done := newRedisStoreTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if err := s.RotateCSRF(ctx, "u1", "o", "c1", "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Put(ctx, "u1", "o", "c1")

	if err := s.RotateCSRF(ctx, "u1", "o", "stale", "c2"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if err := s.RotateCSRF(ctx, "u1", "o", "c1", "c2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	rec, _ := s.Get(ctx, "u1")
	if rec.CSRFToken != "c2" {
		t.Fatalf("expected rotated csrf, got %q", rec.CSRFToken)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr, done := newRedisStoreTest(t, time.Hour)
	defer done()
	mr.Close()

	ctx := context.Background()
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := s.Put(ctx, "u1", "o", "c"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := s.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from ping, got %v", err)
	}
}
