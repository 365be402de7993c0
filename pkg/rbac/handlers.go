package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dineos/accessd/pkg/audit"
	"github.com/dineos/accessd/pkg/contextkeys"
	"github.com/dineos/accessd/pkg/httputil"
	"github.com/dineos/accessd/pkg/observability"
)

// Handlers provides the HTTP surface for the access-control engine.
type Handlers struct {
	manager *Manager
	logger  *observability.Logger
}

// NewHandlers creates handlers over a manager.
func NewHandlers(manager *Manager, logger *observability.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers all access-control routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Tenant provisioning
	router.HandleFunc("/access/tenant/bootstrap", h.BootstrapTenant).Methods("POST")

	// Permission catalog
	router.HandleFunc("/access/permissions", h.CreatePermission).Methods("POST")
	router.HandleFunc("/access/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/access/permissions/batch", h.BatchSavePermissions).Methods("POST")
	router.HandleFunc("/access/permissions/{id}", h.GetPermission).Methods("GET")
	router.HandleFunc("/access/permissions/{id}", h.UpdatePermission).Methods("PUT")
	router.HandleFunc("/access/permissions/{id}", h.DeletePermission).Methods("DELETE")

	// Roles
	router.HandleFunc("/access/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/access/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/access/roles/forest", h.RoleForest).Methods("GET")
	router.HandleFunc("/access/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/access/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/access/roles/{id}", h.DeleteRole).Methods("DELETE")

	// Direct grants
	router.HandleFunc("/access/roles/{id}/permissions", h.AddGrant).Methods("POST")
	router.HandleFunc("/access/roles/{id}/permissions", h.CommitGrants).Methods("PUT")
	router.HandleFunc("/access/roles/{id}/permissions", h.ListGrants).Methods("GET")
	router.HandleFunc("/access/roles/{id}/permissions/{permission_id}", h.RemoveGrant).Methods("DELETE")

	// Inheritance
	router.HandleFunc("/access/roles/{id}/inheritance", h.AddEdge).Methods("POST")
	router.HandleFunc("/access/roles/{id}/inheritance/{child_id}", h.RemoveEdge).Methods("DELETE")
	router.HandleFunc("/access/inheritance/check", h.CheckCycle).Methods("GET")

	// Resolution
	router.HandleFunc("/access/roles/{id}/effective-permissions", h.RoleEffectivePermissions).Methods("GET")
	router.HandleFunc("/access/users/{id}/permissions", h.UserPermissions).Methods("GET")

	// User assignments
	router.HandleFunc("/access/users/{id}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/access/users/{id}/roles", h.ListUserRoles).Methods("GET")
	router.HandleFunc("/access/users/{id}/roles/{role_id}", h.RevokeRole).Methods("DELETE")
}

// BootstrapTenant seeds the calling tenant's system roles. Safe to call
// repeatedly; existing roles are left untouched.
func (h *Handlers) BootstrapTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	err := h.manager.EnsureTenant(ctx, tenantID)
	h.manager.observe("tenant_bootstrap", err)
	if err != nil {
		h.respondError(w, r, "bootstrap tenant", err)
		return
	}

	h.manager.Audit().LogMutation(ctx, audit.EventTypeTenantBootstrap, audit.ResourceTypeTenant, strconv.FormatInt(tenantID, 10), "tenant system roles seeded")
	httputil.WriteNoContent(w)
}

// CreatePermission adds a permission definition to the catalog.
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in PermissionInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	perm, err := h.manager.Registry().Create(ctx, in)
	h.manager.observe("permission_create", err)
	if err != nil {
		h.respondError(w, r, "create permission", err)
		return
	}

	h.manager.InvalidateAll(ctx)
	h.manager.Audit().LogMutation(ctx, audit.EventTypePermissionCreate, audit.ResourceTypePermission, strconv.FormatInt(perm.ID, 10), "permission "+perm.Key+" created")
	httputil.WriteCreated(w, perm)
}

// ListPermissions returns the full catalog.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.manager.Registry().List(r.Context())
	if err != nil {
		h.respondError(w, r, "list permissions", err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// GetPermission returns one permission definition.
func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	perm, err := h.manager.Registry().Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get permission", err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// UpdatePermission modifies a permission definition.
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var up PermissionUpdate
	if err := httputil.DecodeJSON(r, &up); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	up.ID = id

	perm, err := h.manager.Registry().Update(ctx, up)
	h.manager.observe("permission_update", err)
	if err != nil {
		h.respondError(w, r, "update permission", err)
		return
	}

	h.manager.InvalidateAll(ctx)
	h.manager.Audit().LogMutation(ctx, audit.EventTypePermissionUpdate, audit.ResourceTypePermission, strconv.FormatInt(id, 10), "permission updated")
	httputil.WriteSuccess(w, perm)
}

// DeletePermission removes an unused permission definition.
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	err := h.manager.Registry().Delete(ctx, id)
	h.manager.observe("permission_delete", err)
	if err != nil {
		h.respondError(w, r, "delete permission", err)
		return
	}

	h.manager.InvalidateAll(ctx)
	h.manager.Audit().LogMutation(ctx, audit.EventTypePermissionDelete, audit.ResourceTypePermission, strconv.FormatInt(id, 10), "permission deleted")
	httputil.WriteNoContent(w)
}

// BatchSavePermissions applies a staged set of catalog changes, reporting
// per-item outcomes.
func (h *Handlers) BatchSavePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in BatchSaveInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.manager.Registry().BatchSave(ctx, in)
	h.manager.observe("permission_batch_save", err)
	if err != nil {
		h.respondError(w, r, "batch save permissions", err)
		return
	}

	h.manager.InvalidateAll(ctx)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeCatalogBatchSave, audit.ResourceTypePermission, "", "permission catalog batch save")
	httputil.WriteSuccess(w, result)
}

// CreateRole creates a custom role in the caller's tenant.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		RoleType    RoleType `json:"role_type"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoleType == "" {
		req.RoleType = RoleTypeCustom
	}

	role, err := h.manager.Roles().Create(ctx, tenantID, req.Name, req.Description, req.RoleType)
	h.manager.observe("role_create", err)
	if err != nil {
		h.respondError(w, r, "create role", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeRoleCreate, audit.ResourceTypeRole, strconv.FormatInt(role.ID, 10), "role "+role.Name+" created")
	httputil.WriteCreated(w, role)
}

// ListRoles lists the tenant's roles, system roles first.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	roles, err := h.manager.Roles().List(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, r, "list roles", err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole returns one role.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	role, err := h.manager.Roles().Get(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, r, "get role", err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole renames or re-describes a role.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var up RoleUpdate
	if err := httputil.DecodeJSON(r, &up); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.manager.Roles().Update(ctx, tenantID, id, up)
	h.manager.observe("role_update", err)
	if err != nil {
		h.respondError(w, r, "update role", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeRoleUpdate, audit.ResourceTypeRole, strconv.FormatInt(id, 10), "role updated")
	httputil.WriteSuccess(w, role)
}

// DeleteRole removes a custom role and everything referencing it.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	err := h.manager.Roles().Delete(ctx, tenantID, id)
	h.manager.observe("role_delete", err)
	if err != nil {
		h.respondError(w, r, "delete role", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeRoleDelete, audit.ResourceTypeRole, strconv.FormatInt(id, 10), "role deleted")
	httputil.WriteNoContent(w)
}

// AddGrant grants a permission directly to a role.
func (h *Handlers) AddGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		PermissionID int64      `json:"permission_id"`
		Condition    *Condition `json:"condition,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.manager.Grants().Assign(ctx, tenantID, roleID, req.PermissionID, req.Condition, h.actor(r))
	h.manager.observe("grant_add", err)
	if err != nil {
		h.respondError(w, r, "add grant", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzGrantAdd, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), "permission granted")
	httputil.WriteNoContent(w)
}

// ListGrants returns a role's direct grants.
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	grants, err := h.manager.Grants().ForRole(r.Context(), tenantID, roleID)
	if err != nil {
		h.respondError(w, r, "list grants", err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

// RemoveGrant removes a direct grant from a role.
func (h *Handlers) RemoveGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permission_id")
	if !ok {
		return
	}

	err := h.manager.Grants().Remove(ctx, tenantID, roleID, permissionID)
	h.manager.observe("grant_remove", err)
	if err != nil {
		h.respondError(w, r, "remove grant", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzGrantRemove, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), "permission revoked")
	httputil.WriteNoContent(w)
}

// CommitGrants applies a staged add/remove set against a role's current
// grants, reporting per-item outcomes.
func (h *Handlers) CommitGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Add    []int64 `json:"add"`
		Remove []int64 `json:"remove"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	baselineGrants, err := h.manager.Grants().ForRole(ctx, tenantID, roleID)
	if err != nil {
		h.respondError(w, r, "commit grants", err)
		return
	}
	baseline := make([]int64, 0, len(baselineGrants))
	for _, g := range baselineGrants {
		baseline = append(baseline, g.PermissionID)
	}

	cs := NewChangeSet(roleID, baseline)
	for _, id := range req.Add {
		cs.Stage(id, ChangeAdd)
	}
	for _, id := range req.Remove {
		cs.Stage(id, ChangeRemove)
	}

	result := cs.Commit(ctx, tenantID, h.manager.Grants(), h.actor(r))
	h.manager.observe("grant_commit", nil)

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzChangeSetCommit, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), "grant change set committed")
	httputil.WriteSuccess(w, result)
}

// AddEdge makes the role inherit from another role.
func (h *Handlers) AddEdge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	parentID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ChildRoleID int64 `json:"child_role_id"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.manager.Graph().AddEdge(ctx, tenantID, parentID, req.ChildRoleID)
	h.manager.observe("edge_add", err)
	if err != nil {
		h.respondError(w, r, "add inheritance edge", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzEdgeAdd, audit.ResourceTypeEdge,
		strconv.FormatInt(parentID, 10)+"->"+strconv.FormatInt(req.ChildRoleID, 10), "inheritance edge added")
	httputil.WriteNoContent(w)
}

// RemoveEdge removes an inheritance edge.
func (h *Handlers) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	parentID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	childID, ok := h.pathID(w, r, "child_id")
	if !ok {
		return
	}

	err := h.manager.Graph().RemoveEdge(ctx, tenantID, parentID, childID)
	h.manager.observe("edge_remove", err)
	if err != nil {
		h.respondError(w, r, "remove inheritance edge", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzEdgeRemove, audit.ResourceTypeEdge,
		strconv.FormatInt(parentID, 10)+"->"+strconv.FormatInt(childID, 10), "inheritance edge removed")
	httputil.WriteNoContent(w)
}

// CheckCycle reports whether a prospective edge would create a cycle, without
// writing anything.
func (h *Handlers) CheckCycle(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	parentID, err := strconv.ParseInt(r.URL.Query().Get("parent"), 10, 64)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid parent id")
		return
	}
	childID, err := strconv.ParseInt(r.URL.Query().Get("child"), 10, 64)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid child id")
		return
	}

	wouldCycle, err := h.manager.Graph().WouldCreateCycle(r.Context(), tenantID, parentID, childID)
	if err != nil {
		h.respondError(w, r, "check cycle", err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"would_create_cycle": wouldCycle})
}

// RoleForest returns the display-ordered inheritance forest.
func (h *Handlers) RoleForest(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	forest, err := h.manager.Graph().Forest(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, r, "role forest", err)
		return
	}
	httputil.WriteSuccess(w, forest)
}

// RoleEffectivePermissions resolves a role's permissions through inheritance.
func (h *Handlers) RoleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	perms, err := h.manager.ResolveForRole(r.Context(), tenantID, roleID)
	if err != nil {
		h.respondError(w, r, "resolve role permissions", err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// UserPermissions resolves the union of a user's role permissions.
func (h *Handlers) UserPermissions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	perms, err := h.manager.ResolveForUser(r.Context(), tenantID, userID)
	if err != nil {
		h.respondError(w, r, "resolve user permissions", err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// AssignRole binds a role to a user, optionally with an expiry.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		RoleID    int64      `json:"role_id"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignment, err := h.manager.Assignments().Assign(ctx, tenantID, userID, req.RoleID, h.actor(r), req.ExpiresAt)
	h.manager.observe("assignment_add", err)
	if err != nil {
		h.respondError(w, r, "assign role", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzAssignmentAdd, audit.ResourceTypeAssignment, strconv.FormatInt(assignment.ID, 10), "role assigned")
	httputil.WriteCreated(w, assignment)
}

// ListUserRoles lists a user's unexpired role assignments.
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	assignments, err := h.manager.Assignments().ForUser(r.Context(), tenantID, userID)
	if err != nil {
		h.respondError(w, r, "list user roles", err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// RevokeRole removes a user's role assignment.
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "role_id")
	if !ok {
		return
	}

	err := h.manager.Assignments().Remove(ctx, tenantID, userID, roleID)
	h.manager.observe("assignment_remove", err)
	if err != nil {
		h.respondError(w, r, "revoke role", err)
		return
	}

	h.manager.Invalidate(ctx, tenantID)
	h.manager.Audit().LogMutation(ctx, audit.EventTypeAuthzAssignmentRemove, audit.ResourceTypeAssignment,
		strconv.FormatInt(userID, 10)+":"+strconv.FormatInt(roleID, 10), "role assignment removed")
	httputil.WriteNoContent(w)
}

// respondError maps engine errors onto HTTP statuses. Unexpected errors are
// logged with their cause and surfaced as an opaque 500.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *ValidationError
	var nf *NotFoundError
	var ce *CycleError
	var ie *ImmutableRoleError
	var re *ReferentialIntegrityError
	var cf *ConflictError

	switch {
	case errors.As(err, &ve):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.As(err, &nf):
		httputil.WriteError(w, http.StatusNotFound, err)
	case errors.As(err, &ce):
		httputil.WriteError(w, http.StatusConflict, err)
	case errors.As(err, &ie):
		httputil.WriteError(w, http.StatusForbidden, err)
	case errors.As(err, &re):
		httputil.WriteError(w, http.StatusConflict, err)
	case errors.As(err, &cf):
		httputil.WriteError(w, http.StatusConflict, err)
	default:
		h.logger.FromContext(r.Context()).WithError(err).WithField("op", op).Error("request failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, op+" failed")
	}
}

func (h *Handlers) tenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID, ok := contextkeys.TenantID(r.Context())
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "tenant not identified")
		return 0, false
	}
	return tenantID, true
}

func (h *Handlers) actor(r *http.Request) *int64 {
	if userID, ok := contextkeys.UserID(r.Context()); ok {
		return &userID
	}
	return nil
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
