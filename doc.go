// Package authtokens issues, verifies, rotates and revokes a web client's
// token triple: a short-lived sealed access token, a long-lived refresh token
// tracked server-side, and a CSRF token bound to the refresh session.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authtokens is the public surface: [Engine], [Builder], [Config] and the
// value types it returns. Token sealing lives in codec, storage backends in
// store, and flow orchestration, throttling and audit dispatch under
// internal/. Cookie transport and HTTP guards live in middleware.
//
// # Sessions
//
// Each principal has at most one refresh session. [Engine.Issue] overwrites
// any earlier one. [Engine.Refresh] rotates the CSRF token on every success,
// so a presented CSRF token works exactly once. [Engine.Revoke] deletes the
// session and is idempotent.
//
// # Errors
//
// Every failure is one of the sentinels in errors.go, matched with
// errors.Is. HTTP callers should answer all of them with the same
// unauthorized response.
package authtokens
