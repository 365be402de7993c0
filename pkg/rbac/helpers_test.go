package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Mirror of the postgres schema, minus postgres-only types.
	_, err = db.Exec(`
		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			scope TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			role_type TEXT NOT NULL,
			is_system_role INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(tenant_id, name)
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			condition TEXT,
			granted_by INTEGER,
			granted_at TIMESTAMP NOT NULL,
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE TABLE role_inheritance (
			tenant_id INTEGER NOT NULL,
			parent_role_id INTEGER NOT NULL,
			child_role_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (parent_role_id, child_role_id)
		);

		CREATE TABLE user_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			tenant_id INTEGER NOT NULL,
			assigned_by INTEGER,
			assigned_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP,
			UNIQUE(user_id, role_id)
		);
	`)
	require.NoError(t, err)

	return db
}

// seedTenant inserts the system roles for a tenant and returns them keyed by
// role type.
func seedTenant(t *testing.T, db *sql.DB, tenantID int64) map[RoleType]*Role {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, SeedSystemRoles(ctx, db, tenantID))

	store := NewRoleStore(db)
	roles, err := store.List(ctx, tenantID)
	require.NoError(t, err)

	byType := make(map[RoleType]*Role, len(roles))
	for i := range roles {
		byType[roles[i].RoleType] = &roles[i]
	}
	return byType
}

func createPermission(t *testing.T, registry *PermissionRegistry, key string) *Permission {
	t.Helper()

	perm, err := registry.Create(context.Background(), PermissionInput{
		Key:      key,
		Name:     key,
		Resource: "orders",
		Action:   "manage",
	})
	require.NoError(t, err)
	return perm
}

func createRole(t *testing.T, store *RoleStore, tenantID int64, name string) *Role {
	t.Helper()

	role, err := store.Create(context.Background(), tenantID, name, "", RoleTypeCustom)
	require.NoError(t, err)
	return role
}

func future(d time.Duration) *time.Time {
	ts := time.Now().UTC().Add(d)
	return &ts
}
