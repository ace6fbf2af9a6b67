package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no live record exists for a principal.
var ErrNotFound = errors.New("refresh session not found")

// ErrPrincipalNotFound is returned by UpdateCSRF when the principal has no record.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrMismatch is returned by [Rotator.RotateCSRF] when the stored opaque value or
// CSRF token differs from the expected one.
var ErrMismatch = errors.New("refresh session mismatch")

// ErrUnavailable wraps backend I/O failures.
var ErrUnavailable = errors.New("store unavailable")

// Record is the server-side half of a refresh session.
type Record struct {
	OpaqueValue string
	CSRFToken   string
}

// Store is the capability set every storage backend implements identically.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, principalID string) (*Record, error)
	Put(ctx context.Context, principalID, opaqueValue, csrfToken string) error
	Delete(ctx context.Context, principalID string) error
	UpdateCSRF(ctx context.Context, principalID, csrfToken string) error
}

// Rotator is implemented by backends that can replace the CSRF token only if
// the stored record still matches, in one atomic step.
type Rotator interface {
	RotateCSRF(ctx context.Context, principalID, opaqueValue, expectedCSRF, nextCSRF string) error
}

// Pinger is implemented by backends with a remote dependency whose health can
// be checked.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}
