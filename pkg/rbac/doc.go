// Package rbac implements tenant-scoped role-based access control for the
// accessd service.
//
// # Overview
//
// The package manages a shared permission catalog, per-tenant roles, direct
// permission grants, a role-inheritance graph, user-role assignments, and the
// resolution of effective permission sets. Tenants are restaurant locations;
// users are staff members.
//
// # Components
//
// The engine consists of six stores plus a resolver, wired by the Manager:
//
//  1. PermissionRegistry: the tenant-shared catalog of permission
//     definitions ("orders.view", "register.refund", ...)
//  2. RoleStore: named roles scoped to a tenant. Seven system roles are
//     seeded per tenant; the owner role is immutable and implicitly holds
//     every permission.
//  3. GrantStore: direct role-to-permission grants with an optional
//     condition clause.
//  4. InheritanceGraph: parent-inherits-from-child edges forming a DAG.
//     Edge insertion is cycle-checked; a duplicate edge is a no-op.
//  5. AssignmentStore: user-role bindings, optionally expiring.
//  6. Resolver: computes effective permission sets for a role (direct
//     grants plus everything reachable through inheritance, deduplicated
//     first-seen-wins) or a user (union across assigned roles).
//
// # Inheritance
//
// An edge parent->child means the parent role inherits every permission the
// child has, directly or transitively. Resolution visits the role itself
// before any inherited role, so a direct grant's condition wins over an
// inherited copy of the same permission. Cycle checks treat a self-edge as a
// cycle.
//
// # Owner short-circuit
//
// The owner role never carries explicit grants and never appears in
// inheritance edges. Resolving it, or any user holding it, returns the full
// catalog with IsInherited false.
//
// # Change sets
//
// ChangeSet stages permission toggles against a role's current grants and
// commits them as independent per-item operations, reporting which items
// applied and which failed. A commit is not transactional across items.
//
// # Errors
//
// Engine operations return typed errors (ValidationError, NotFoundError,
// CycleError, ImmutableRoleError, ConflictError, ReferentialIntegrityError);
// anything unexpected is wrapped in ServerError so handlers can log the cause
// without leaking it to clients.
//
// # HTTP surface
//
// Handlers mounts the engine under /access using gorilla/mux. Tenant and
// user principals come from request headers via the middleware package.
// PermissionMiddleware guards arbitrary routes behind resolved permission
// keys:
//
//	pm := rbac.NewPermissionMiddleware(manager)
//	router.Handle("/reports", pm.RequirePermission("reports.view")(reportsHandler))
//
// # Storage
//
// All stores run on database/sql against PostgreSQL (lib/pq). Migrations are
// versioned in migrations.go and applied by Manager.Bootstrap; system roles
// per tenant are seeded by Manager.EnsureTenant. Tests run the same queries
// against in-memory SQLite.
package rbac
