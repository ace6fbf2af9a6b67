package authtokens

import (
	"context"
	"errors"

	"github.com/MrEthical07/authtokens/internal/flows"
)

const (
	auditEventIssue   = "issue"
	auditEventRefresh = "refresh"
	auditEventRevoke  = "revoke"
)

// AuditErrorCode is the stable error label carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrRefreshNotFound   AuditErrorCode = "refresh_not_found"
	auditErrRefreshMismatch   AuditErrorCode = "refresh_mismatch"
	auditErrPrincipalNotFound AuditErrorCode = "principal_not_found"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrInvalidPrincipal  AuditErrorCode = "invalid_principal"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		RequestID:   requestIDFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reasonMetadata(reason string) func() map[string]string {
	if reason == "" {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}

func issueFailureReason(kind flows.IssueFailureKind) string {
	switch kind {
	case flows.IssueFailureRandom:
		return "random_source"
	case flows.IssueFailureSealAccess:
		return "seal_access"
	case flows.IssueFailureSealRefresh:
		return "seal_refresh"
	case flows.IssueFailureStore:
		return "store_put"
	default:
		return ""
	}
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureDecode:
		return "decode_failed"
	case flows.RefreshFailureRateLimited:
		return "rate_limited"
	case flows.RefreshFailureNotFound:
		return "session_not_found"
	case flows.RefreshFailureMismatch:
		return "stale_value_or_csrf"
	case flows.RefreshFailureRandom:
		return "random_source"
	case flows.RefreshFailureSealAccess:
		return "seal_access"
	case flows.RefreshFailureSealRefresh:
		return "seal_refresh"
	case flows.RefreshFailurePrincipalNotFound:
		return "session_vanished"
	case flows.RefreshFailureStore:
		return "store_write"
	default:
		return ""
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrRefreshMismatch):
		return auditErrRefreshMismatch
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidPrincipal):
		return auditErrInvalidPrincipal
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
