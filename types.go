package authtokens

import (
	"io"
	"time"

	"github.com/go-logr/logr"

	internalaudit "github.com/MrEthical07/authtokens/internal/audit"
)

// TokenSet is returned by [Engine.Issue] and [Engine.Refresh]. The HTTP layer
// decides how each token travels (cookies, headers, body).
//
// After a refresh without value rotation RefreshToken is the string the client
// already holds and RefreshRotated is false.
type TokenSet struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RefreshRotated   bool
	CSRFToken        string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	PrincipalID string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// RefreshSession is the result of a successful [Engine.VerifyRefresh].
type RefreshSession struct {
	PrincipalID string
	OpaqueValue string
	CSRFToken   string
	ExpiresAt   time.Time
}

// AuditEvent is one token lifecycle event delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogrSink logs events through a logr.Logger.
type LogrSink = internalaudit.LogrSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLogrSink(logger logr.Logger) *LogrSink {
	return internalaudit.NewLogrSink(logger)
}
