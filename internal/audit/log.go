// Package audit records security-relevant account events as structured logs.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"accountd.dev/internal/auth"
	"accountd.dev/internal/obs"
)

// Event names.
const (
	EventRegister       = "account.register"
	EventLogin          = "account.login"
	EventLoginFailed    = "account.login_failed"
	EventSuspend        = "account.suspend"
	EventUnsuspend      = "account.unsuspend"
	EventForceLogout    = "account.force_logout"
	EventPasswordChange = "account.password_change"
	EventRename         = "account.rename"
	EventAvatarUpdate   = "account.avatar_update"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []slog.Attr{
		slog.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if actor, ok := auth.AccountFromContext(ctx); ok {
		attrs = append(attrs, slog.String("actor", actor.Username), slog.Int64("actor_id", actor.ID))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	attrs = append(attrs, slog.Any("fields", copyFields))

	obs.Logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
