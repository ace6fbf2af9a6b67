// Package codec seals token claim sets into opaque strings and opens them again.
//
// # Envelope
//
// A sealed token is base64url(version || nonce || AES-256-GCM(ciphertext)). The
// plaintext is a compact HS256 JWT carrying the principal ID, the token kind,
// optional opaque value, and the registered exp/iat/jti claims. Keys are derived
// once with HKDF-SHA256 from the configured secrets and never change for the
// lifetime of a [Codec].
//
// # What this package must NOT do
//
//   - Access storage or any I/O besides crypto/rand.
//   - Import the root authtokens package.
package codec
