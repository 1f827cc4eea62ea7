package goSession

import (
	"context"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
)

// AuditEvent is a structured audit record. It never carries token values.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the Client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes events to a structured logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs events through logger at info level.
func NewSlogSink(logger *slog.Logger) SlogSink {
	return SlogSink{Logger: logger}
}

// Audit event types.
const (
	AuditLogin                  = "login"
	AuditLogout                 = "logout"
	AuditRefresh                = "refresh"
	AuditForcedLogout           = "forced_logout"
	AuditSessionExpired         = "session_expired"
	AuditIdempotencyKeyCleared  = "idempotency_key_cleared"
	AuditIdempotencyKeyRetained = "idempotency_key_retained"
)

// AuditDropped returns the number of events dropped because the buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) emitAudit(ctx context.Context, event AuditEvent) {
	if c == nil || c.audit == nil {
		return
	}
	c.audit.Emit(ctx, event)
}
