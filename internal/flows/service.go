package flows

import "context"

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.Store != nil && s.deps.Refresh.OpenRefresh != nil
}

func (s Service) Issue(ctx context.Context, principalID string) IssueResult {
	return RunIssue(ctx, principalID, s.deps.Issue)
}

func (s Service) VerifyRefresh(ctx context.Context, refreshToken, csrfToken string) VerifyResult {
	return RunVerifyRefresh(ctx, refreshToken, csrfToken, s.deps.Verify)
}

func (s Service) Refresh(ctx context.Context, refreshToken, csrfToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, csrfToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, principalID string) error {
	return RunLogout(ctx, principalID, s.deps.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, accessToken string) LogoutResult {
	return RunLogoutByAccessToken(ctx, accessToken, s.deps.Logout)
}

func (s Service) LogoutByRefreshToken(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogoutByRefreshToken(ctx, refreshToken, s.deps.Logout)
}
