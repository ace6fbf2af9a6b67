package authtokens

import "errors"

var (
	// ErrInvalidToken is returned when a token is malformed, tampered or of the
	// wrong kind, and for expired access tokens. No storage state is touched.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRefreshNotFound is returned when the principal has no live refresh
	// session, including when the refresh token itself has expired.
	ErrRefreshNotFound = errors.New("refresh session not found")
	// ErrRefreshMismatch is returned when the presented refresh value or CSRF
	// token differs from the stored session.
	ErrRefreshMismatch = errors.New("refresh session mismatch")
	// ErrPrincipalNotFound is returned when a CSRF update targets a principal
	// whose record vanished between verification and write.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrStorageUnavailable wraps storage backend failures.
	ErrStorageUnavailable = errors.New("token storage unavailable")
	// ErrRefreshRateLimited is returned when the refresh throttle rejects a principal.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrInvalidPrincipal is returned for empty or oversized principal IDs.
	ErrInvalidPrincipal = errors.New("invalid principal id")
	// ErrEngineNotReady is returned by operations on a zero or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
