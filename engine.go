package authtokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authtokens/codec"
	"github.com/MrEthical07/authtokens/internal"
	internalaudit "github.com/MrEthical07/authtokens/internal/audit"
	"github.com/MrEthical07/authtokens/internal/flows"
	"github.com/MrEthical07/authtokens/internal/rate"
	"github.com/MrEthical07/authtokens/store"
)

// MaxPrincipalIDLength is the longest principal ID the engine accepts.
const MaxPrincipalIDLength = 255

// Engine issues, verifies, rotates and revokes token triples. Build it with
// [New]; it is safe for concurrent use and holds no per-request state besides
// its storage backend.
type Engine struct {
	config  Config
	codec   *codec.Codec
	store   store.Store
	redis   redis.UniversalClient
	limiter rate.Limiter
	flows   flows.Service
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  logr.Logger
	now     func() time.Time

	closers   []func() error
	closeOnce sync.Once
	closed    atomic.Bool
}

// Close flushes pending audit events and closes connections the engine
// opened itself. Clients passed to the Builder are left open. Afterwards every
// operation fails with [ErrEngineNotReady].
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.audit.Close()
		e.closeOwned()
	})
}

func (e *Engine) closeOwned() {
	for _, closeFn := range e.closers {
		if err := closeFn(); err != nil {
			e.logger.Error(err, "close storage connection")
		}
	}
	e.closers = nil
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load() && e.flows.Initialized()
}

// Issue starts a new session for an already authenticated principal and
// returns its token triple. Any previous session of the principal is
// replaced, so its refresh token stops working.
//
//	Performance: 1 store write (Redis: 1 MULTI/EXEC round-trip).
func (e *Engine) Issue(ctx context.Context, principalID string) (*TokenSet, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := validatePrincipalID(principalID); err != nil {
		return nil, err
	}

	res := e.flows.Issue(ctx, principalID)
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		err := e.issueError(res)
		e.emitAudit(ctx, auditEventIssue, false, principalID, err, reasonMetadata(issueFailureReason(res.Failure)))
		return nil, err
	}

	e.metricInc(MetricIssue)
	e.emitAudit(ctx, auditEventIssue, true, principalID, nil, nil)

	return tokenSetFromFlow(res.Tokens, true), nil
}

func (e *Engine) issueError(res flows.IssueResult) error {
	if res.Failure == flows.IssueFailureStore {
		return e.storageError(res.Err)
	}
	return fmt.Errorf("issue tokens: %w", res.Err)
}

// VerifyAccess checks an access token cryptographically and against the
// clock. It never touches storage. Any failure is [ErrInvalidToken].
func (e *Engine) VerifyAccess(_ context.Context, accessToken string) (*AccessClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Open(accessToken, codec.KindAccess)
	if err != nil {
		e.metricInc(MetricAccessInvalid)
		return nil, ErrInvalidToken
	}

	out := &AccessClaims{
		PrincipalID: claims.Subject,
		TokenID:     claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// VerifyRefresh checks a refresh token and CSRF token pair against the
// stored session without rotating anything.
//
// It fails with [ErrInvalidToken], [ErrRefreshNotFound], [ErrRefreshMismatch]
// or [ErrStorageUnavailable]. Session lifetime belongs to the store: an
// authentic refresh token past its sealed expiry is reported as
// [ErrRefreshNotFound] after the store has been read, never as
// [ErrInvalidToken].
func (e *Engine) VerifyRefresh(ctx context.Context, refreshToken, csrfToken string) (*RefreshSession, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.VerifyRefresh(ctx, refreshToken, csrfToken)
	switch res.Failure {
	case flows.VerifyFailureNone:
	case flows.VerifyFailureDecode:
		return nil, ErrInvalidToken
	case flows.VerifyFailureNotFound:
		return nil, ErrRefreshNotFound
	case flows.VerifyFailureMismatch:
		return nil, ErrRefreshMismatch
	default:
		return nil, e.storageError(res.Err)
	}

	return &RefreshSession{
		PrincipalID: res.Claims.PrincipalID,
		OpaqueValue: res.Record.OpaqueValue,
		CSRFToken:   res.Record.CSRFToken,
		ExpiresAt:   res.Claims.ExpiresAt,
	}, nil
}

// Refresh verifies the presented pair, then rotates the CSRF token (and the
// refresh value when Refresh.RotateValue is set) and issues a new access
// token. The presented CSRF token is invalid as soon as Refresh returns.
//
// Errors are those of [Engine.VerifyRefresh], plus [ErrRefreshRateLimited]
// and [ErrPrincipalNotFound] when the session vanished before the write.
//
//	Performance: 1 store read + 1 store write, or 1 compare-and-swap with
//	Refresh.AtomicRotation.
func (e *Engine) Refresh(ctx context.Context, refreshToken, csrfToken string) (*TokenSet, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Refresh(ctx, refreshToken, csrfToken)
	e.metrics.Observe(MetricRefreshLatency, time.Since(start))

	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshError(res)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, false, res.PrincipalID, err, reasonMetadata(refreshFailureReason(res.Failure)))
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, true, res.PrincipalID, nil, func() map[string]string {
		if !res.Rotated {
			return nil
		}
		return map[string]string{"value_rotated": "true"}
	})

	return tokenSetFromFlow(res.Tokens, res.Rotated), nil
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return ErrInvalidToken
	case flows.RefreshFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			return ErrRefreshRateLimited
		}
		return e.storageError(res.Err)
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshNotFound)
		return ErrRefreshNotFound
	case flows.RefreshFailureMismatch:
		e.metricInc(MetricRefreshMismatch)
		return ErrRefreshMismatch
	case flows.RefreshFailurePrincipalNotFound:
		return ErrPrincipalNotFound
	case flows.RefreshFailureStore:
		return e.storageError(res.Err)
	default:
		return fmt.Errorf("refresh tokens: %w", res.Err)
	}
}

// Revoke deletes the principal's session. Revoking a principal without a
// session succeeds.
func (e *Engine) Revoke(ctx context.Context, principalID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := validatePrincipalID(principalID); err != nil {
		return err
	}

	if err := e.flows.Logout(ctx, principalID); err != nil {
		err = e.storageError(err)
		e.emitAudit(ctx, auditEventRevoke, false, principalID, err, nil)
		return err
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, true, principalID, nil, nil)
	return nil
}

// RevokeByAccessToken revokes the session of the principal named by a valid
// access token. An invalid token yields [ErrInvalidToken] and touches nothing.
func (e *Engine) RevokeByAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.finishLogout(ctx, e.flows.LogoutByAccessToken(ctx, accessToken), "access_token")
}

// RevokeByRefreshToken revokes the session of the principal named by a
// refresh token. The token only has to be authentic: it may be expired and
// need not match the store.
func (e *Engine) RevokeByRefreshToken(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.finishLogout(ctx, e.flows.LogoutByRefreshToken(ctx, refreshToken), "refresh_token")
}

func (e *Engine) finishLogout(ctx context.Context, res flows.LogoutResult, via string) error {
	meta := func() map[string]string { return map[string]string{"via": via} }
	if !res.Decoded {
		e.emitAudit(ctx, auditEventRevoke, false, "", ErrInvalidToken, meta)
		return ErrInvalidToken
	}
	if res.Err != nil {
		err := e.storageError(res.Err)
		e.emitAudit(ctx, auditEventRevoke, false, res.PrincipalID, err, meta)
		return err
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, true, res.PrincipalID, nil, meta)
	return nil
}

// Ping checks the storage backend and reports its round-trip latency.
// Backends without a remote dependency always succeed with zero latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	p, ok := e.store.(store.Pinger)
	if !ok {
		return 0, nil
	}
	latency, err := p.Ping(ctx)
	if err != nil {
		return latency, e.storageError(err)
	}
	return latency, nil
}

func (e *Engine) storageError(err error) error {
	e.metricInc(MetricStorageError)
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return errors.Join(ErrStorageUnavailable, err)
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) buildFlows(rotator store.Rotator) flows.Service {
	size := e.config.Tokens.RandomBytesSize
	newToken := func() (string, error) { return internal.NewToken(size) }

	var limiter flows.RefreshRateLimiter
	if e.limiter != nil {
		limiter = e.limiter
	}

	return flows.New(flows.Deps{
		Issue: flows.IssueDeps{
			NewTokenPair: func() (string, string, error) { return internal.NewTokenPair(size) },
			SealAccess:   e.sealAccess,
			SealRefresh:  e.sealRefresh,
			Store:        e.store,
		},
		Verify: flows.VerifyDeps{
			OpenRefresh: e.openRefresh,
			Store:       e.store,
		},
		Refresh: flows.RefreshDeps{
			OpenRefresh: e.openRefresh,
			NewToken:    newToken,
			SealAccess:  e.sealAccess,
			SealRefresh: e.sealRefresh,
			RateLimiter: limiter,
			Store:       e.store,
			Rotator:     rotator,
			RotateValue: e.config.Refresh.RotateValue,
		},
		Logout: flows.LogoutDeps{
			OpenAccess:  e.openAccess,
			OpenRefresh: e.openRefresh,
			Store:       e.store,
		},
	})
}

func (e *Engine) sealAccess(principalID string) (string, time.Time, error) {
	exp := e.now().Add(e.config.Tokens.AccessTokenMaxAge).Truncate(jwt.TimePrecision)
	token, err := e.codec.Seal(codec.Claims{
		Kind:             codec.KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: principalID},
	}, exp)
	return token, exp, err
}

func (e *Engine) sealRefresh(principalID, opaqueValue string) (string, time.Time, error) {
	exp := e.now().Add(e.config.Tokens.RefreshTokenMaxAge).Truncate(jwt.TimePrecision)
	token, err := e.codec.Seal(codec.Claims{
		Kind:             codec.KindRefresh,
		Value:            opaqueValue,
		RegisteredClaims: jwt.RegisteredClaims{Subject: principalID},
	}, exp)
	return token, exp, err
}

func (e *Engine) openAccess(token string) (string, error) {
	claims, err := e.codec.Open(token, codec.KindAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// openRefresh accepts expired refresh tokens; the flows report them as a
// missing session once the store has been consulted.
func (e *Engine) openRefresh(token string) (flows.RefreshClaims, error) {
	claims, expired, err := e.codec.Inspect(token, codec.KindRefresh)
	if err != nil {
		return flows.RefreshClaims{}, err
	}
	if claims.Value == "" {
		return flows.RefreshClaims{}, fmt.Errorf("%w: missing refresh value", codec.ErrInvalidToken)
	}
	out := flows.RefreshClaims{
		PrincipalID: claims.Subject,
		OpaqueValue: claims.Value,
		Expired:     expired,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func tokenSetFromFlow(t flows.TokenSet, refreshRotated bool) *TokenSet {
	return &TokenSet{
		AccessToken:      t.AccessToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshToken:     t.RefreshToken,
		RefreshExpiresAt: t.RefreshExpiresAt,
		RefreshRotated:   refreshRotated,
		CSRFToken:        t.CSRFToken,
	}
}

func validatePrincipalID(principalID string) error {
	if principalID == "" || len(principalID) > MaxPrincipalIDLength {
		return ErrInvalidPrincipal
	}
	return nil
}
