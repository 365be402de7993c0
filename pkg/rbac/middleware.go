package rbac

import (
	"net/http"

	"github.com/dineos/accessd/pkg/contextkeys"
	"github.com/dineos/accessd/pkg/httputil"
)

// PermissionMiddleware guards routes behind resolved permissions.
type PermissionMiddleware struct {
	manager *Manager
}

// NewPermissionMiddleware creates a permission middleware over a manager.
func NewPermissionMiddleware(manager *Manager) *PermissionMiddleware {
	return &PermissionMiddleware{manager: manager}
}

// RequirePermission requires the calling user to hold the permission key.
func (pm *PermissionMiddleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return pm.require(func(perms []EffectivePermission) bool {
		return hasKey(perms, key)
	})
}

// RequireAnyPermission requires at least one of the permission keys.
func (pm *PermissionMiddleware) RequireAnyPermission(keys ...string) func(http.Handler) http.Handler {
	return pm.require(func(perms []EffectivePermission) bool {
		for _, key := range keys {
			if hasKey(perms, key) {
				return true
			}
		}
		return false
	})
}

// RequireAllPermissions requires every one of the permission keys.
func (pm *PermissionMiddleware) RequireAllPermissions(keys ...string) func(http.Handler) http.Handler {
	return pm.require(func(perms []EffectivePermission) bool {
		for _, key := range keys {
			if !hasKey(perms, key) {
				return false
			}
		}
		return true
	})
}

func (pm *PermissionMiddleware) require(allowed func([]EffectivePermission) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tenantID, ok := contextkeys.TenantID(ctx)
			if !ok {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "tenant not identified")
				return
			}
			userID, ok := contextkeys.UserID(ctx)
			if !ok {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			perms, err := pm.manager.ResolveForUser(ctx, tenantID, userID)
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				return
			}

			if !allowed(perms) {
				pm.manager.Audit().LogDenied(ctx, r.URL.Path, "insufficient permissions")
				httputil.WriteErrorMessage(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasKey(perms []EffectivePermission, key string) bool {
	for _, p := range perms {
		if p.Key == key {
			return true
		}
	}
	return false
}
