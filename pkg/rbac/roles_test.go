package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleStore_Create(t *testing.T) {
	db := setupTestDB(t)
	roles := NewRoleStore(db)
	ctx := context.Background()

	t.Run("custom role", func(t *testing.T) {
		role, err := roles.Create(ctx, 1, "Shift Lead", "Runs the evening shift", RoleTypeCustom)
		require.NoError(t, err)
		assert.NotZero(t, role.ID)
		assert.False(t, role.IsSystemRole)
		assert.Equal(t, KindStandard, role.Kind())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := roles.Create(ctx, 1, "", "", RoleTypeCustom)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "name", ve.Field)
	})

	t.Run("unknown role type", func(t *testing.T) {
		_, err := roles.Create(ctx, 1, "Sommelier", "", RoleType("sommelier"))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "role_type", ve.Field)
	})

	t.Run("owner cannot be created", func(t *testing.T) {
		_, err := roles.Create(ctx, 1, "Second Owner", "", RoleTypeOwner)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("duplicate name in tenant", func(t *testing.T) {
		_, err := roles.Create(ctx, 1, "Shift Lead", "", RoleTypeCustom)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("same name in other tenant", func(t *testing.T) {
		_, err := roles.Create(ctx, 2, "Shift Lead", "", RoleTypeCustom)
		require.NoError(t, err)
	})
}

func TestRoleStore_GetIsTenantScoped(t *testing.T) {
	db := setupTestDB(t)
	roles := NewRoleStore(db)
	ctx := context.Background()

	role := createRole(t, roles, 1, "Shift Lead")

	got, err := roles.Get(ctx, 1, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.Name, got.Name)

	_, err = roles.Get(ctx, 2, role.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "role", nf.Kind)
}

func TestRoleStore_ListOrdersSystemRolesFirst(t *testing.T) {
	db := setupTestDB(t)
	roles := NewRoleStore(db)
	seedTenant(t, db, 1)
	createRole(t, roles, 1, "Shift Lead")

	list, err := roles.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 8)
	for _, r := range list[:7] {
		assert.True(t, r.IsSystemRole, "system roles sort before custom")
	}
	assert.Equal(t, "Shift Lead", list[7].Name)
}

func TestRoleStore_Owner(t *testing.T) {
	db := setupTestDB(t)
	roles := NewRoleStore(db)
	seedTenant(t, db, 1)
	ctx := context.Background()

	owner, err := roles.Owner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, RoleTypeOwner, owner.RoleType)

	_, err = roles.Owner(ctx, 42)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRoleStore_Update(t *testing.T) {
	db := setupTestDB(t)
	roles := NewRoleStore(db)
	system := seedTenant(t, db, 1)
	custom := createRole(t, roles, 1, "Shift Lead")
	ctx := context.Background()

	t.Run("rename custom role", func(t *testing.T) {
		name := "Floor Lead"
		updated, err := roles.Update(ctx, 1, custom.ID, RoleUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Floor Lead", updated.Name)
	})

	t.Run("system role name is immutable", func(t *testing.T) {
		name := "Boss"
		_, err := roles.Update(ctx, 1, system[RoleTypeManager].ID, RoleUpdate{Name: &name})
		var ie *ImmutableRoleError
		require.ErrorAs(t, err, &ie)
		assert.Contains(t, err.Error(), "only the description of a system role may change")
	})

	t.Run("system role description may change", func(t *testing.T) {
		desc := "Handles scheduling and staff reviews"
		updated, err := roles.Update(ctx, 1, system[RoleTypeManager].ID, RoleUpdate{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, desc, updated.Description)
	})

	t.Run("rename collision", func(t *testing.T) {
		name := "Manager"
		_, err := roles.Update(ctx, 1, custom.ID, RoleUpdate{Name: &name})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestRoleStore_Delete(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	graph := NewInheritanceGraph(db, roles)
	grants := NewGrantStore(db, roles)
	assignments := NewAssignmentStore(db, roles)
	system := seedTenant(t, db, 1)
	ctx := context.Background()

	t.Run("system role refuses deletion", func(t *testing.T) {
		err := roles.Delete(ctx, 1, system[RoleTypeWaiter].ID)
		var ie *ImmutableRoleError
		require.ErrorAs(t, err, &ie)
	})

	t.Run("owner refuses deletion", func(t *testing.T) {
		err := roles.Delete(ctx, 1, system[RoleTypeOwner].ID)
		var ie *ImmutableRoleError
		require.ErrorAs(t, err, &ie)
	})

	t.Run("custom role cascades grants, edges, and assignments", func(t *testing.T) {
		perm := createPermission(t, registry, "orders.view")
		role := createRole(t, roles, 1, "Shift Lead")
		require.NoError(t, grants.Assign(ctx, 1, role.ID, perm.ID, nil, nil))
		require.NoError(t, graph.AddEdge(ctx, 1, role.ID, system[RoleTypeWaiter].ID))
		_, err := assignments.Assign(ctx, 1, 501, role.ID, nil, nil)
		require.NoError(t, err)

		require.NoError(t, roles.Delete(ctx, 1, role.ID))

		_, err = roles.Get(ctx, 1, role.ID)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)

		for _, table := range []string{"role_permissions", "role_inheritance", "user_roles"} {
			var n int
			query := "SELECT COUNT(*) FROM " + table + " WHERE role_id = $1"
			if table == "role_inheritance" {
				query = "SELECT COUNT(*) FROM role_inheritance WHERE parent_role_id = $1 OR child_role_id = $1"
			}
			require.NoError(t, db.QueryRowContext(ctx, query, role.ID).Scan(&n))
			assert.Zero(t, n, table)
		}
	})
}
