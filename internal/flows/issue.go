package flows

import (
	"context"
	"time"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureRandom
	IssueFailureSealAccess
	IssueFailureSealRefresh
	IssueFailureStore
)

// IssueResult carries the new token set or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Tokens  TokenSet
}

type IssueStore interface {
	Put(ctx context.Context, principalID, opaqueValue, csrfToken string) error
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	NewTokenPair func() (opaque string, csrf string, err error)
	SealAccess   func(principalID string) (string, time.Time, error)
	SealRefresh  func(principalID, opaqueValue string) (string, time.Time, error)
	Store        IssueStore
}

// RunIssue mints a fresh token triple for principalID and records it,
// replacing any previous session of that principal.
func RunIssue(ctx context.Context, principalID string, deps IssueDeps) IssueResult {
	opaque, csrf, err := deps.NewTokenPair()
	if err != nil {
		return IssueResult{Failure: IssueFailureRandom, Err: err}
	}

	access, accessExp, err := deps.SealAccess(principalID)
	if err != nil {
		return IssueResult{Failure: IssueFailureSealAccess, Err: err}
	}
	refresh, refreshExp, err := deps.SealRefresh(principalID, opaque)
	if err != nil {
		return IssueResult{Failure: IssueFailureSealRefresh, Err: err}
	}

	if err := deps.Store.Put(ctx, principalID, opaque, csrf); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	return IssueResult{
		Tokens: TokenSet{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExp,
			CSRFToken:        csrf,
		},
	}
}
