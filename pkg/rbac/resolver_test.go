package rbac

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolverFixture wires every store over one sqlite database and seeds tenant 1.
type resolverFixture struct {
	registry    *PermissionRegistry
	roles       *RoleStore
	graph       *InheritanceGraph
	grants      *GrantStore
	assignments *AssignmentStore
	resolver    *Resolver
	system      map[RoleType]*Role
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	graph := NewInheritanceGraph(db, roles)
	grants := NewGrantStore(db, roles)
	assignments := NewAssignmentStore(db, roles)
	return &resolverFixture{
		registry:    registry,
		roles:       roles,
		graph:       graph,
		grants:      grants,
		assignments: assignments,
		resolver:    NewResolver(registry, roles, grants, graph, assignments),
		system:      seedTenant(t, db, 1),
	}
}

func keysOf(perms []EffectivePermission) []string {
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.Key)
	}
	return keys
}

func TestResolver_DirectGrantsOnly(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	view := createPermission(t, f.registry, "orders.view")
	waiter := f.system[RoleTypeWaiter]
	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, view.ID, nil, nil))

	perms, err := f.resolver.ResolveForRole(ctx, 1, waiter.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "orders.view", perms[0].Key)
	assert.False(t, perms[0].IsInherited)
	assert.Equal(t, waiter.ID, perms[0].SourceRoleID)
}

func TestResolver_InheritanceChain(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	view := createPermission(t, f.registry, "orders.view")
	serve := createPermission(t, f.registry, "tables.serve")
	schedule := createPermission(t, f.registry, "staff.schedule")

	waiter := f.system[RoleTypeWaiter]
	manager := f.system[RoleTypeManager]
	admin := f.system[RoleTypeAdmin]

	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, view.ID, nil, nil))
	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, serve.ID, nil, nil))
	require.NoError(t, f.grants.Assign(ctx, 1, manager.ID, schedule.ID, nil, nil))
	require.NoError(t, f.graph.AddEdge(ctx, 1, manager.ID, waiter.ID))
	require.NoError(t, f.graph.AddEdge(ctx, 1, admin.ID, manager.ID))

	t.Run("one level", func(t *testing.T) {
		perms, err := f.resolver.ResolveForRole(ctx, 1, manager.ID)
		require.NoError(t, err)
		require.Len(t, perms, 3)

		// direct grants come first
		assert.Equal(t, "staff.schedule", perms[0].Key)
		assert.False(t, perms[0].IsInherited)
		for _, p := range perms[1:] {
			assert.True(t, p.IsInherited)
			assert.Equal(t, waiter.ID, p.SourceRoleID)
		}
	})

	t.Run("transitive", func(t *testing.T) {
		perms, err := f.resolver.ResolveForRole(ctx, 1, admin.ID)
		require.NoError(t, err)
		require.Len(t, perms, 3)
		for _, p := range perms {
			assert.True(t, p.IsInherited)
		}
	})

	t.Run("edge removal takes effect immediately", func(t *testing.T) {
		require.NoError(t, f.graph.RemoveEdge(ctx, 1, manager.ID, waiter.ID))

		perms, err := f.resolver.ResolveForRole(ctx, 1, manager.ID)
		require.NoError(t, err)
		require.Len(t, perms, 1)
		assert.Equal(t, "staff.schedule", perms[0].Key)
	})
}

func TestResolver_DirectGrantShadowsInherited(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	discount := createPermission(t, f.registry, "orders.discount")
	waiter := f.system[RoleTypeWaiter]
	manager := f.system[RoleTypeManager]

	cond := &Condition{Field: "amount", Operator: OpEquals, Value: json.RawMessage(`"small"`)}
	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, discount.ID, cond, nil))
	require.NoError(t, f.grants.Assign(ctx, 1, manager.ID, discount.ID, nil, nil))
	require.NoError(t, f.graph.AddEdge(ctx, 1, manager.ID, waiter.ID))

	perms, err := f.resolver.ResolveForRole(ctx, 1, manager.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)

	// the manager's own unconditional grant wins over the waiter's conditional one
	assert.False(t, perms[0].IsInherited)
	assert.Equal(t, manager.ID, perms[0].SourceRoleID)
	assert.Nil(t, perms[0].Condition)
}

func TestResolver_OwnerShortCircuit(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	createPermission(t, f.registry, "orders.view")
	createPermission(t, f.registry, "menu.edit")
	createPermission(t, f.registry, "reports.export")
	owner := f.system[RoleTypeOwner]

	t.Run("role resolve", func(t *testing.T) {
		perms, err := f.resolver.ResolveForRole(ctx, 1, owner.ID)
		require.NoError(t, err)
		require.Len(t, perms, 3)
		for _, p := range perms {
			assert.False(t, p.IsInherited)
			assert.Equal(t, owner.ID, p.SourceRoleID)
		}
	})

	t.Run("user resolve", func(t *testing.T) {
		_, err := f.assignments.Assign(ctx, 1, 700, f.system[RoleTypeWaiter].ID, nil, nil)
		require.NoError(t, err)
		_, err = f.assignments.Assign(ctx, 1, 700, owner.ID, nil, nil)
		require.NoError(t, err)

		perms, err := f.resolver.ResolveForUser(ctx, 1, 700)
		require.NoError(t, err)
		assert.Len(t, perms, 3, "owner assignment grants the full catalog")
	})
}

func TestResolver_UserUnion(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	view := createPermission(t, f.registry, "orders.view")
	register := createPermission(t, f.registry, "register.open")
	waiter := f.system[RoleTypeWaiter]
	cashier := f.system[RoleTypeCashier]

	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, view.ID, nil, nil))
	require.NoError(t, f.grants.Assign(ctx, 1, cashier.ID, view.ID, nil, nil))
	require.NoError(t, f.grants.Assign(ctx, 1, cashier.ID, register.ID, nil, nil))

	_, err := f.assignments.Assign(ctx, 1, 501, waiter.ID, nil, nil)
	require.NoError(t, err)
	_, err = f.assignments.Assign(ctx, 1, 501, cashier.ID, nil, nil)
	require.NoError(t, err)

	perms, err := f.resolver.ResolveForUser(ctx, 1, 501)
	require.NoError(t, err)
	require.Len(t, perms, 2, "shared permission deduplicated across roles")
	assert.ElementsMatch(t, []string{"orders.view", "register.open"}, keysOf(perms))

	// the shared permission is attributed to the first role that produced it
	for _, p := range perms {
		if p.Key == "orders.view" {
			assert.Equal(t, waiter.ID, p.SourceRoleID)
		}
	}
}

func TestResolver_UserWithNoAssignments(t *testing.T) {
	f := newResolverFixture(t)

	perms, err := f.resolver.ResolveForUser(context.Background(), 1, 999)
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestResolver_ExpiredAssignmentDropsPermissions(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	view := createPermission(t, f.registry, "orders.view")
	waiter := f.system[RoleTypeWaiter]
	require.NoError(t, f.grants.Assign(ctx, 1, waiter.ID, view.ID, nil, nil))
	_, err := f.assignments.Assign(ctx, 1, 501, waiter.ID, nil, future(-time.Minute))
	require.NoError(t, err)

	perms, err := f.resolver.ResolveForUser(ctx, 1, 501)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestResolver_Deterministic(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	for _, key := range []string{"orders.view", "orders.cancel", "menu.edit", "reports.export"} {
		perm := createPermission(t, f.registry, key)
		require.NoError(t, f.grants.Assign(ctx, 1, f.system[RoleTypeWaiter].ID, perm.ID, nil, nil))
	}
	require.NoError(t, f.graph.AddEdge(ctx, 1, f.system[RoleTypeManager].ID, f.system[RoleTypeWaiter].ID))

	first, err := f.resolver.ResolveForRole(ctx, 1, f.system[RoleTypeManager].ID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.resolver.ResolveForRole(ctx, 1, f.system[RoleTypeManager].ID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
