package flows

import "time"

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Issue   IssueDeps
	Verify  VerifyDeps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// TokenSet is the credential triple produced by issue and refresh.
type TokenSet struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}

// RefreshClaims is what an opened refresh token reveals. Expired tokens are
// still authentic; the session they name has lapsed.
type RefreshClaims struct {
	PrincipalID string
	OpaqueValue string
	ExpiresAt   time.Time
	Expired     bool
}
