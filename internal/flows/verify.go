package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/MrEthical07/authtokens/store"
)

// VerifyFailureKind classifies refresh verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureDecode
	VerifyFailureNotFound
	VerifyFailureMismatch
	VerifyFailureStore
)

// VerifyResult carries the matched session or failure metadata.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  RefreshClaims
	Record  *store.Record
}

type VerifyStore interface {
	Get(ctx context.Context, principalID string) (*store.Record, error)
}

// VerifyDeps captures refresh verification dependencies.
type VerifyDeps struct {
	OpenRefresh func(string) (RefreshClaims, error)
	Store       VerifyStore
}

// RunVerifyRefresh opens refreshToken, loads the principal's record, and
// checks both the opaque value and csrfToken against it.
func RunVerifyRefresh(ctx context.Context, refreshToken, csrfToken string, deps VerifyDeps) VerifyResult {
	claims, err := deps.OpenRefresh(refreshToken)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}
	return verifyRecord(ctx, claims, csrfToken, deps.Store)
}

// verifyRecord consults the store even for an expired token so that storage
// outages surface as such. A lapsed token never matches a live record.
func verifyRecord(ctx context.Context, claims RefreshClaims, csrfToken string, st VerifyStore) VerifyResult {
	rec, err := st.Get(ctx, claims.PrincipalID)
	if err == nil && claims.Expired {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifyResult{Failure: VerifyFailureNotFound, Err: err, Claims: claims}
		}
		return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims}
	}

	if !recordMatches(rec, claims.OpaqueValue, csrfToken) {
		return VerifyResult{Failure: VerifyFailureMismatch, Err: store.ErrMismatch, Claims: claims}
	}

	return VerifyResult{Claims: claims, Record: rec}
}

// recordMatches compares both fields before deciding so the outcome does not
// depend on which one differs.
func recordMatches(rec *store.Record, opaqueValue, csrfToken string) bool {
	opaqueOK := subtle.ConstantTimeCompare([]byte(rec.OpaqueValue), []byte(opaqueValue))
	csrfOK := subtle.ConstantTimeCompare([]byte(rec.CSRFToken), []byte(csrfToken))
	present := 0
	if opaqueValue != "" && csrfToken != "" {
		present = 1
	}
	return opaqueOK&csrfOK&present == 1
}
