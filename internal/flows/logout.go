package flows

import "context"

type LogoutStore interface {
	Delete(ctx context.Context, principalID string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	OpenAccess  func(string) (string, error)
	OpenRefresh func(string) (RefreshClaims, error)
	Store       LogoutStore
}

// LogoutResult reports the principal a token resolved to. Decoded is false
// when the token itself was rejected and the store was not touched.
type LogoutResult struct {
	PrincipalID string
	Decoded     bool
	Err         error
}

func RunLogout(ctx context.Context, principalID string, deps LogoutDeps) error {
	return deps.Store.Delete(ctx, principalID)
}

func RunLogoutByAccessToken(ctx context.Context, accessToken string, deps LogoutDeps) LogoutResult {
	principalID, err := deps.OpenAccess(accessToken)
	if err != nil {
		return LogoutResult{Err: err}
	}
	return LogoutResult{
		PrincipalID: principalID,
		Decoded:     true,
		Err:         deps.Store.Delete(ctx, principalID),
	}
}

func RunLogoutByRefreshToken(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.OpenRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Err: err}
	}
	return LogoutResult{
		PrincipalID: claims.PrincipalID,
		Decoded:     true,
		Err:         deps.Store.Delete(ctx, claims.PrincipalID),
	}
}
