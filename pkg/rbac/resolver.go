package rbac

import (
	"context"
)

// Resolver computes effective permission sets for roles and users. Every call
// reads the current storage state; the resolver itself never caches, so it is
// safe to call at arbitrarily high frequency.
type Resolver struct {
	registry    *PermissionRegistry
	roles       *RoleStore
	grants      *GrantStore
	graph       *InheritanceGraph
	assignments *AssignmentStore
}

// NewResolver creates a new effective-permission resolver.
func NewResolver(registry *PermissionRegistry, roles *RoleStore, grants *GrantStore, graph *InheritanceGraph, assignments *AssignmentStore) *Resolver {
	return &Resolver{
		registry:    registry,
		roles:       roles,
		grants:      grants,
		graph:       graph,
		assignments: assignments,
	}
}

// snapshot is one consistent read of everything the traversal needs, so the
// walk itself issues no further queries.
type snapshot struct {
	perms        map[int64]Permission
	grantsByRole map[int64][]Grant
	adj          map[int64][]int64
}

func (r *Resolver) load(ctx context.Context, tenantID int64) (*snapshot, error) {
	perms, err := r.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := r.grants.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adj, err := r.graph.adjacency(ctx, tenantID)
	if err != nil {
		return nil, serverErr("resolve permissions", err)
	}

	snap := &snapshot{
		perms:        make(map[int64]Permission, len(perms)),
		grantsByRole: make(map[int64][]Grant),
		adj:          adj,
	}
	for _, p := range perms {
		snap.perms[p.ID] = p
	}
	for _, g := range grants {
		snap.grantsByRole[g.RoleID] = append(snap.grantsByRole[g.RoleID], g)
	}
	return snap, nil
}

// ResolveForRole returns the full deduplicated permission set of a role:
// its direct grants first, then everything reachable through inheritance
// edges, each entry tagged with the role it came from. For the same
// permission the first occurrence wins, so a direct grant always shadows an
// inherited one.
func (r *Resolver) ResolveForRole(ctx context.Context, tenantID, roleID int64) ([]EffectivePermission, error) {
	role, err := r.roles.Get(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}

	if role.Kind() == KindOwner {
		return r.allPermissions(ctx, roleID)
	}

	snap, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return resolveRole(snap, roleID, nil), nil
}

// ResolveForUser returns the union of ResolveForRole over every role assigned
// to the user, deduplicated first-seen. A user holding the owner role
// short-circuits to the entire catalog.
func (r *Resolver) ResolveForUser(ctx context.Context, tenantID, userID int64) ([]EffectivePermission, error) {
	assignments, err := r.assignments.ForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return []EffectivePermission{}, nil
	}

	roleIDs := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		role, err := r.roles.Get(ctx, tenantID, a.RoleID)
		if err != nil {
			return nil, err
		}
		if role.Kind() == KindOwner {
			return r.allPermissions(ctx, role.ID)
		}
		roleIDs = append(roleIDs, a.RoleID)
	}

	snap, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	result := []EffectivePermission{}
	for _, roleID := range roleIDs {
		result = append(result, resolveRole(snap, roleID, seen)...)
	}
	return result, nil
}

// resolveRole performs the visited-set-guarded traversal over the snapshot.
// seen carries dedup state across roles for user resolution; pass nil for a
// single-role resolve. The start role is processed first so its direct grants
// are recorded before any inherited ones.
func resolveRole(snap *snapshot, startRoleID int64, seen map[int64]bool) []EffectivePermission {
	if seen == nil {
		seen = make(map[int64]bool)
	}
	visited := make(map[int64]bool)
	queue := []int64{startRoleID}
	result := []EffectivePermission{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, g := range snap.grantsByRole[current] {
			if seen[g.PermissionID] {
				continue
			}
			seen[g.PermissionID] = true
			ep := EffectivePermission{
				PermissionID: g.PermissionID,
				IsInherited:  current != startRoleID,
				SourceRoleID: current,
				Condition:    g.Condition,
			}
			if p, ok := snap.perms[g.PermissionID]; ok {
				ep.Key = p.Key
			}
			result = append(result, ep)
		}
		queue = append(queue, snap.adj[current]...)
	}
	return result
}

// allPermissions returns the full catalog attributed directly to the given
// role. Used for the owner short-circuit.
func (r *Resolver) allPermissions(ctx context.Context, sourceRoleID int64) ([]EffectivePermission, error) {
	perms, err := r.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]EffectivePermission, 0, len(perms))
	for _, p := range perms {
		result = append(result, EffectivePermission{
			PermissionID: p.ID,
			Key:          p.Key,
			IsInherited:  false,
			SourceRoleID: sourceRoleID,
		})
	}
	return result, nil
}
