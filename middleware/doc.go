// Package middleware carries the token triple over HTTP.
//
// # Cookies
//
//   - [SetTokenCookies] writes the access, refresh and CSRF cookies after
//     Issue or Refresh. Access and refresh cookies are HttpOnly; the CSRF
//     cookie is readable by script so the client can echo it back.
//   - [ClearTokenCookies] expires all three.
//   - [TokensFromRequest] extracts them again. The CSRF token is taken from
//     the [CSRFHeader] header first and falls back to its cookie.
//
// # Guards
//
//   - [Guard] protects a net/http handler.
//   - [GinGuard] protects a gin route.
//
// Both read the access token from its cookie or an Authorization Bearer
// header and call Engine.VerifyAccess. Every failure is answered with the
// same 401 so callers learn nothing about why a token was rejected.
package middleware
