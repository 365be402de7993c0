// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the service are defined here. This prevents
// typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// TenantIDKey contains the authenticated tenant id (int64).
	// Set by: middleware.Principal
	// Required by: every tenant-scoped endpoint
	TenantIDKey Key = "tenant_id"

	// UserIDKey contains the authenticated user id (int64).
	// Set by: middleware.Principal
	// Used by: audit trail, assigned_by/granted_by attribution
	UserIDKey Key = "user_id"

	// RequestIDKey contains the request ID string (UUID).
	// Set by: middleware.RequestID
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithTenantID adds the tenant id to the context.
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantID retrieves the tenant id from the context.
func TenantID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TenantIDKey).(int64)
	return id, ok
}

// WithUserID adds the user id to the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID retrieves the user id from the context.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

// WithRequestID adds the request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request id from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
