// Package middleware provides HTTP middleware for principal extraction and
// request identification. Authentication itself happens upstream; this
// service trusts the identity headers set by the fronting authenticator.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dineos/accessd/pkg/contextkeys"
	"github.com/dineos/accessd/pkg/httputil"
	"github.com/google/uuid"
)

const (
	// TenantHeader carries the authenticated tenant id.
	TenantHeader = "X-Access-Tenant-ID"
	// UserHeader carries the authenticated user id.
	UserHeader = "X-Access-User-ID"
	// RequestIDHeader carries the request id, generated when absent.
	RequestIDHeader = "X-Request-ID"
)

// Principal extracts the tenant and user identity headers into the request
// context. Requests without a valid tenant id are rejected.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := strconv.ParseInt(r.Header.Get(TenantHeader), 10, 64)
		if err != nil || tenantID <= 0 {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing or invalid tenant identity")
			return
		}

		ctx := contextkeys.WithTenantID(r.Context(), tenantID)

		if userID, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64); err == nil && userID > 0 {
			ctx = contextkeys.WithUserID(ctx, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID attaches a request id to the context and response, generating a
// UUID when the client did not send one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
