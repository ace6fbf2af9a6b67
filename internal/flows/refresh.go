package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authtokens/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureMismatch
	RefreshFailureRandom
	RefreshFailureSealAccess
	RefreshFailureSealRefresh
	RefreshFailurePrincipalNotFound
	RefreshFailureStore
)

// RefreshResult carries either the rotated token set or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	PrincipalID string
	Rotated     bool
	Tokens      TokenSet
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, principalID string) error
}

type RefreshStore interface {
	VerifyStore
	Put(ctx context.Context, principalID, opaqueValue, csrfToken string) error
	UpdateCSRF(ctx context.Context, principalID, csrfToken string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	OpenRefresh func(string) (RefreshClaims, error)
	NewToken    func() (string, error)
	SealAccess  func(principalID string) (string, time.Time, error)
	SealRefresh func(principalID, opaqueValue string) (string, time.Time, error)
	RateLimiter RefreshRateLimiter
	Store       RefreshStore
	// Rotator, when set, replaces the plain read-compare-write with the
	// store's compare-and-swap.
	Rotator store.Rotator
	// RotateValue rotates the refresh opaque value along with the CSRF token.
	RotateValue bool
}

// RunRefresh verifies the presented pair and rotates the session. On success
// the presented CSRF token no longer matches the stored record.
func RunRefresh(ctx context.Context, refreshToken, csrfToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.OpenRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	principalID := claims.PrincipalID

	if claims.Expired {
		lapsed := verifyRecord(ctx, claims, csrfToken, deps.Store)
		return RefreshResult{
			Failure:     refreshFailureFromVerify(lapsed.Failure),
			Err:         lapsed.Err,
			PrincipalID: principalID,
		}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, principalID); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, PrincipalID: principalID}
		}
	}

	if deps.Rotator == nil {
		verified := verifyRecord(ctx, claims, csrfToken, deps.Store)
		if verified.Failure != VerifyFailureNone {
			return RefreshResult{
				Failure:     refreshFailureFromVerify(verified.Failure),
				Err:         verified.Err,
				PrincipalID: principalID,
			}
		}
	}

	nextCSRF, err := deps.NewToken()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRandom, Err: err, PrincipalID: principalID}
	}
	nextOpaque := claims.OpaqueValue
	if deps.RotateValue {
		nextOpaque, err = deps.NewToken()
		if err != nil {
			return RefreshResult{Failure: RefreshFailureRandom, Err: err, PrincipalID: principalID}
		}
	}

	access, accessExp, err := deps.SealAccess(principalID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSealAccess, Err: err, PrincipalID: principalID}
	}

	tokens := TokenSet{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: claims.ExpiresAt,
		CSRFToken:        nextCSRF,
	}
	if deps.RotateValue {
		tokens.RefreshToken, tokens.RefreshExpiresAt, err = deps.SealRefresh(principalID, nextOpaque)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureSealRefresh, Err: err, PrincipalID: principalID}
		}
	}

	if err := writeRotation(ctx, claims, csrfToken, nextOpaque, nextCSRF, deps); err != nil {
		return RefreshResult{Failure: refreshFailureFromWrite(err), Err: err, PrincipalID: principalID}
	}

	return RefreshResult{
		PrincipalID: principalID,
		Rotated:     deps.RotateValue,
		Tokens:      tokens,
	}
}

func writeRotation(ctx context.Context, claims RefreshClaims, presentedCSRF, nextOpaque, nextCSRF string, deps RefreshDeps) error {
	if deps.Rotator != nil {
		// Claim the rotation first so only one concurrent caller proceeds.
		if err := deps.Rotator.RotateCSRF(ctx, claims.PrincipalID, claims.OpaqueValue, presentedCSRF, nextCSRF); err != nil {
			return err
		}
		if !deps.RotateValue {
			return nil
		}
		return deps.Store.Put(ctx, claims.PrincipalID, nextOpaque, nextCSRF)
	}

	if deps.RotateValue {
		return deps.Store.Put(ctx, claims.PrincipalID, nextOpaque, nextCSRF)
	}
	return deps.Store.UpdateCSRF(ctx, claims.PrincipalID, nextCSRF)
}

func refreshFailureFromVerify(kind VerifyFailureKind) RefreshFailureKind {
	switch kind {
	case VerifyFailureDecode:
		return RefreshFailureDecode
	case VerifyFailureNotFound:
		return RefreshFailureNotFound
	case VerifyFailureMismatch:
		return RefreshFailureMismatch
	default:
		return RefreshFailureStore
	}
}

func refreshFailureFromWrite(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return RefreshFailureNotFound
	case errors.Is(err, store.ErrMismatch):
		return RefreshFailureMismatch
	case errors.Is(err, store.ErrPrincipalNotFound):
		return RefreshFailurePrincipalNotFound
	default:
		return RefreshFailureStore
	}
}
