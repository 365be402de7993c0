package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeSet_Stage(t *testing.T) {
	cs := NewChangeSet(10, []int64{1, 2})

	t.Run("add and remove", func(t *testing.T) {
		cs.Stage(3, ChangeAdd)
		cs.Stage(1, ChangeRemove)

		diff := cs.Diff()
		assert.Equal(t, []int64{3}, diff.ToAdd)
		assert.Equal(t, []int64{1}, diff.ToRemove)
		assert.True(t, cs.HasPendingChanges())
	})

	t.Run("opposite action cancels", func(t *testing.T) {
		cs.Stage(3, ChangeRemove) // cancels the pending add
		cs.Stage(1, ChangeAdd)    // cancels the pending remove

		diff := cs.Diff()
		assert.Empty(t, diff.ToAdd)
		assert.Empty(t, diff.ToRemove)
		assert.False(t, cs.HasPendingChanges())
	})

	t.Run("baseline matches are no-ops", func(t *testing.T) {
		cs.Stage(2, ChangeAdd)     // already in baseline
		cs.Stage(99, ChangeRemove) // not in baseline

		assert.False(t, cs.HasPendingChanges())
	})
}

func TestChangeSet_UnstageAndDiscard(t *testing.T) {
	cs := NewChangeSet(10, []int64{1})
	cs.Stage(3, ChangeAdd)
	cs.Stage(4, ChangeAdd)
	cs.Stage(1, ChangeRemove)

	cs.Unstage(3)
	diff := cs.Diff()
	assert.Equal(t, []int64{4}, diff.ToAdd)
	assert.Equal(t, []int64{1}, diff.ToRemove)

	cs.Discard()
	assert.False(t, cs.HasPendingChanges())
}

func TestChangeSet_DiffIsSorted(t *testing.T) {
	cs := NewChangeSet(10, nil)
	for _, id := range []int64{9, 3, 7, 1} {
		cs.Stage(id, ChangeAdd)
	}
	assert.Equal(t, []int64{1, 3, 7, 9}, cs.Diff().ToAdd)
}

func TestChangeSet_Commit(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	grants := NewGrantStore(db, roles)
	system := seedTenant(t, db, 1)
	ctx := context.Background()

	view := createPermission(t, registry, "orders.view")
	serve := createPermission(t, registry, "tables.serve")
	edit := createPermission(t, registry, "menu.edit")
	waiter := system[RoleTypeWaiter]
	require.NoError(t, grants.Assign(ctx, 1, waiter.ID, view.ID, nil, nil))

	cs := NewChangeSet(waiter.ID, []int64{view.ID})
	cs.Stage(serve.ID, ChangeAdd)
	cs.Stage(edit.ID, ChangeAdd)
	cs.Stage(view.ID, ChangeRemove)

	result := cs.Commit(ctx, 1, grants, nil)
	assert.Equal(t, 3, result.Applied)
	assert.Empty(t, result.Errors)
	assert.False(t, cs.HasPendingChanges())

	after, err := grants.ForRole(ctx, 1, waiter.ID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(after))
	for _, g := range after {
		ids = append(ids, g.PermissionID)
	}
	assert.ElementsMatch(t, []int64{serve.ID, edit.ID}, ids)
}

func TestChangeSet_CommitPartialFailure(t *testing.T) {
	db := setupTestDB(t)
	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	grants := NewGrantStore(db, roles)
	system := seedTenant(t, db, 1)
	ctx := context.Background()

	view := createPermission(t, registry, "orders.view")
	waiter := system[RoleTypeWaiter]

	// the baseline claims a grant that no longer exists, and an add that
	// targets a deleted permission
	ghost := createPermission(t, registry, "legacy.flag")
	ghostID := ghost.ID
	require.NoError(t, registry.Delete(ctx, ghostID))

	cs := NewChangeSet(waiter.ID, []int64{9999})
	cs.Stage(view.ID, ChangeAdd)
	cs.Stage(ghostID, ChangeAdd)
	cs.Stage(9999, ChangeRemove)

	result := cs.Commit(ctx, 1, grants, nil)
	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors, fmt.Sprintf("add %d: permission not found: %d", ghostID, ghostID))
	assert.Contains(t, result.Errors, fmt.Sprintf("remove %d: grant not found: %d", 9999, 9999))

	// the applied add landed despite the failures
	after, err := grants.ForRole(ctx, 1, waiter.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, view.ID, after[0].PermissionID)

	// failed items stay pending for a retry
	assert.True(t, cs.HasPendingChanges())
	diff := cs.Diff()
	assert.Equal(t, []int64{ghostID}, diff.ToAdd)
	assert.Equal(t, []int64{9999}, diff.ToRemove)
}
