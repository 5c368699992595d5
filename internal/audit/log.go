// Package audit records security relevant events as structured log entries.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Event names.
const (
	EventAccessDenied      = "authz.denied"
	EventLoginFailed       = "auth.login_failed"
	EventPasswordChanged   = "auth.password_changed"
	EventPasswordReset     = "auth.password_reset"
	EventRoleCreated       = "rbac.role_created"
	EventRoleDeleted       = "rbac.role_deleted"
	EventRolePermissions   = "rbac.role_permissions_set"
	EventPermissionCreated = "rbac.permission_created"
	EventPermissionDeleted = "rbac.permission_deleted"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the caller's identity.
func LogEvent(ctx context.Context, event string, fields logrus.Fields) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := make(logrus.Fields, len(fields)+5)
	for k, v := range fields {
		entry[k] = v
	}
	entry["type"] = "audit"
	entry["event"] = event
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		entry["user_id"] = claims.UserID()
		entry["role"] = claims.Role
	}
	obs.Logger().WithFields(entry).Info("audit")
	return nil
}

// Denied records a rejected authorization decision.
func Denied(ctx context.Context, operation string, err error) {
	_ = LogEvent(ctx, EventAccessDenied, logrus.Fields{
		"operation": operation,
		"reason":    err.Error(),
	})
}
