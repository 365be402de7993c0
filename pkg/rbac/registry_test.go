package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionRegistry_Create(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		perm, err := registry.Create(ctx, PermissionInput{
			Key:      "orders.view",
			Name:     "View orders",
			Resource: "orders",
			Action:   "view",
		})
		require.NoError(t, err)
		assert.NotZero(t, perm.ID)
		assert.Equal(t, "orders.view", perm.Key)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := registry.Create(ctx, PermissionInput{Key: "orders.update"})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "name", ve.Field)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := registry.Create(ctx, PermissionInput{
			Key:      "orders.view",
			Name:     "View orders again",
			Resource: "orders",
			Action:   "view",
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "key", ve.Field)
	})
}

func TestPermissionRegistry_GetAndList(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	ctx := context.Background()

	created := createPermission(t, registry, "orders.view")
	createPermission(t, registry, "menu.edit")

	got, err := registry.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Key, got.Key)

	_, err = registry.Get(ctx, 9999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "permission", nf.Kind)

	perms, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	// ordered by key
	assert.Equal(t, "menu.edit", perms[0].Key)
	assert.Equal(t, "orders.view", perms[1].Key)
}

func TestPermissionRegistry_Update(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	ctx := context.Background()

	perm := createPermission(t, registry, "orders.view")
	other := createPermission(t, registry, "orders.cancel")

	t.Run("partial update keeps other fields", func(t *testing.T) {
		newName := "View all orders"
		updated, err := registry.Update(ctx, PermissionUpdate{ID: perm.ID, Name: &newName})
		require.NoError(t, err)
		assert.Equal(t, newName, updated.Name)
		assert.Equal(t, "orders.view", updated.Key)
	})

	t.Run("key collision", func(t *testing.T) {
		dup := "orders.cancel"
		_, err := registry.Update(ctx, PermissionUpdate{ID: perm.ID, Key: &dup})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("unknown id", func(t *testing.T) {
		name := "x"
		_, err := registry.Update(ctx, PermissionUpdate{ID: 9999, Name: &name})
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	_ = other
}

func TestPermissionRegistry_Delete(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	grants := NewGrantStore(db, roles)
	ctx := context.Background()

	perm := createPermission(t, registry, "orders.view")
	role := createRole(t, roles, 1, "Shift Lead")
	require.NoError(t, grants.Assign(ctx, 1, role.ID, perm.ID, nil, nil))

	t.Run("in use", func(t *testing.T) {
		err := registry.Delete(ctx, perm.ID)
		var re *ReferentialIntegrityError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, fmt.Sprintf("%d: in use, cannot delete", perm.ID), err.Error())
	})

	t.Run("after grant removed", func(t *testing.T) {
		require.NoError(t, grants.Remove(ctx, 1, role.ID, perm.ID))
		require.NoError(t, registry.Delete(ctx, perm.ID))

		_, err := registry.Get(ctx, perm.ID)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("missing", func(t *testing.T) {
		err := registry.Delete(ctx, 9999)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestPermissionRegistry_BatchSave(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	grants := NewGrantStore(db, roles)
	ctx := context.Background()

	inUse := createPermission(t, registry, "orders.view")
	deletable := createPermission(t, registry, "menu.archive")
	role := createRole(t, roles, 1, "Shift Lead")
	require.NoError(t, grants.Assign(ctx, 1, role.ID, inUse.ID, nil, nil))

	result, err := registry.BatchSave(ctx, BatchSaveInput{
		Creates: []PermissionInput{
			{Key: "menu.edit", Name: "Edit menu", Resource: "menu", Action: "edit"},
			{Key: "orders.view", Name: "Duplicate", Resource: "orders", Action: "view"},
			{Key: "", Name: "No key", Resource: "x", Action: "y"},
		},
		Deletes: []int64{deletable.ID, inUse.ID},
	})
	require.NoError(t, err)

	// valid items applied despite the failing ones
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Deleted)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors, fmt.Sprintf("%d: in use, cannot delete", inUse.ID))

	perms, err := registry.List(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.Key)
	}
	assert.Contains(t, keys, "menu.edit")
	assert.NotContains(t, keys, "menu.archive")
	assert.Contains(t, keys, "orders.view")
}

func TestPermissionRegistry_BatchSaveDuplicateInBatch(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	ctx := context.Background()

	result, err := registry.BatchSave(ctx, BatchSaveInput{
		Creates: []PermissionInput{
			{Key: "tables.assign", Name: "A", Resource: "tables", Action: "assign"},
			{Key: "tables.assign", Name: "B", Resource: "tables", Action: "assign"},
		},
	})
	require.NoError(t, err)

	// both copies of the duplicated key are rejected
	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "duplicate key in batch")
}
