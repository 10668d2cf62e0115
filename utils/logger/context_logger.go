package logger

import (
	"context"
	"log/slog"
)

type contextKey string

// Context keys for request-scoped logging attributes.
const (
	UserIDKey       contextKey = "user_id"
	RequestIDKey    contextKey = "request_id"
	TenantIDKey     contextKey = "tenant_id"
	SessionScopeKey contextKey = "session_scope"
	AuthStageKey    contextKey = "auth_stage"
)

// GlobalContext is the process-wide ContextLogger, set by Init.
var GlobalContext *ContextLogger

// ContextLogger decorates a slog.Logger with auth-flow attributes carried in
// the context, so every log line from one request names the same user, tenant
// and flow stage.
type ContextLogger struct {
	logger *slog.Logger
}

func NewContextLogger(logger *slog.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger pre-loaded with whatever auth attributes the
// context carries. Absent keys produce no attribute.
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger

	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		logger = logger.With("user_id", v)
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		logger = logger.With("request_id", v)
	}
	if v, ok := ctx.Value(TenantIDKey).(string); ok && v != "" {
		logger = logger.With("gate.tenant.id", v)
	}
	if v, ok := ctx.Value(SessionScopeKey).(string); ok && v != "" {
		logger = logger.With("gate.session.scope", v)
	}
	if v, ok := ctx.Value(AuthStageKey).(string); ok && v != "" {
		logger = logger.With("gate.auth.stage", v)
	}

	return logger
}

// LogDuration records how long an operation took, in milliseconds.
func (cl *ContextLogger) LogDuration(ctx context.Context, operation string, durationMs int64) {
	cl.WithContext(ctx).Info("operation completed",
		"operation", operation,
		"duration_ms", durationMs,
	)
}

// LogError records a failed operation with its error.
func (cl *ContextLogger) LogError(ctx context.Context, operation string, err error) {
	cl.WithContext(ctx).Error("operation failed",
		"operation", operation,
		"error", err,
	)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func WithSessionScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, SessionScopeKey, scope)
}

func WithAuthStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, AuthStageKey, stage)
}
