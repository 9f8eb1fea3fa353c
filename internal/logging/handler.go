// Package logging provides a custom slog handler that integrates with the
// audit log. It forwards logs at WARN level and above into the bounded
// event log as synthetic system events, so operator-relevant warnings show
// up in the same queryable stream as request observations.
package logging

import (
	"context"
	"log/slog"

	"github.com/olegiv/warden-go/internal/audit"
)

// System event actions used for forwarded log records.
const (
	ActionSystemWarning = "system.warning"
	ActionSystemError   = "system.error"
)

// AuditLogHandler is a slog.Handler that wraps another handler and also
// writes WARN and ERROR level records to the audit log.
type AuditLogHandler struct {
	inner slog.Handler
	log   *audit.Log
	level slog.Level // Minimum level to forward to the audit log (default: WARN)
}

// NewAuditLogHandler creates a new AuditLogHandler that wraps the given handler.
// Records at WARN level and above are written to both the wrapped handler
// and the audit log.
func NewAuditLogHandler(inner slog.Handler, log *audit.Log) *AuditLogHandler {
	return &AuditLogHandler{
		inner: inner,
		log:   log,
		level: slog.LevelWarn,
	}
}

// NewAuditLogHandlerWithLevel creates a new AuditLogHandler with a custom minimum level.
func NewAuditLogHandlerWithLevel(inner slog.Handler, log *audit.Log, level slog.Level) *AuditLogHandler {
	return &AuditLogHandler{
		inner: inner,
		log:   log,
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeToAuditLog(r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AuditLogHandler{
		inner: h.inner.WithAttrs(attrs),
		log:   h.log,
		level: h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *AuditLogHandler) WithGroup(name string) slog.Handler {
	return &AuditLogHandler{
		inner: h.inner.WithGroup(name),
		log:   h.log,
		level: h.level,
	}
}

// writeToAuditLog appends a completed synthetic event for a log record.
// Log-bridge events are born completed: there is no response to wait for.
func (h *AuditLogHandler) writeToAuditLog(r slog.Record) {
	action := ActionSystemWarning
	if r.Level >= slog.LevelError {
		action = ActionSystemError
	}

	snapshot := map[string]any{"message": r.Message}
	r.Attrs(func(a slog.Attr) bool {
		snapshot[a.Key] = a.Value.String()
		return true
	})

	h.log.Append(audit.Event{
		Timestamp: r.Time,
		Action:    action,
		Resource:  "system",
		Request:   snapshot,
		Outcome:   &audit.Outcome{ErrorSummary: r.Message},
	})
}
