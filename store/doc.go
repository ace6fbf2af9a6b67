// Package store provides the server-side refresh-session state keyed by principal ID.
//
// Every backend implements the same four-operation [Store] contract: Get, Put
// (overwrite and set expiry), Delete (idempotent), and UpdateCSRF (fails with
// [ErrPrincipalNotFound] when no record exists and never extends expiry).
// Backends that can compare-and-swap also implement [Rotator].
//
// # Backends
//
//   - [MemoryStore]: process-local map, no expiry enforcement.
//   - [RedisStore]: one hash per principal with a TTL set on Put.
//   - [PostgresStore]: one row per principal with an expires_at column.
//
// # What this package must NOT do
//
//   - Interpret or verify tokens.
//   - Import the root authtokens package or codec.
package store
