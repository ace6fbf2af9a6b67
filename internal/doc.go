// Package internal contains helper utilities that are private to authtokens,
// including secure random token generation.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for every Engine operation
//   - rate: refresh throttle backed by Redis or process memory
//   - audit: async audit event dispatch and sinks
//
// # What this package must NOT do
//
//   - Export types that appear in the public authtokens API.
//   - Be imported by any package outside the authtokens module.
package internal
