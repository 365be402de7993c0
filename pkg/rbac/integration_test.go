//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a disposable PostgreSQL container, runs the
// migrations against it, and returns a connected pool. The container and its
// volumes are removed on cleanup.
func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("accessd_test"),
		postgres.WithUsername("accessd"),
		postgres.WithPassword("accessd_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(ctx, db))
	return db
}

func TestIntegration_EngineRoundTrip(t *testing.T) {
	db := setupPostgresContainer(t)
	manager := NewManager(db, ManagerOptions{})
	ctx := context.Background()

	require.NoError(t, manager.EnsureTenant(ctx, 1))
	require.NoError(t, manager.EnsureTenant(ctx, 1), "seeding must be idempotent")

	roles, err := manager.Roles().List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 7)

	byType := make(map[RoleType]*Role, len(roles))
	for i := range roles {
		byType[roles[i].RoleType] = &roles[i]
	}

	view, err := manager.Registry().Create(ctx, PermissionInput{
		Key: "orders.view", Name: "View orders", Resource: "orders", Action: "view",
	})
	require.NoError(t, err)
	schedule, err := manager.Registry().Create(ctx, PermissionInput{
		Key: "staff.schedule", Name: "Manage schedules", Resource: "staff", Action: "schedule",
	})
	require.NoError(t, err)

	waiter := byType[RoleTypeWaiter]
	mgr := byType[RoleTypeManager]

	cond := &Condition{Field: "shift", Operator: OpIn, Value: json.RawMessage(`["morning"]`)}
	require.NoError(t, manager.Grants().Assign(ctx, 1, waiter.ID, view.ID, cond, nil))
	require.NoError(t, manager.Grants().Assign(ctx, 1, mgr.ID, schedule.ID, nil, nil))
	require.NoError(t, manager.Graph().AddEdge(ctx, 1, mgr.ID, waiter.ID))

	t.Run("resolution through inheritance", func(t *testing.T) {
		perms, err := manager.ResolveForRole(ctx, 1, mgr.ID)
		require.NoError(t, err)
		require.Len(t, perms, 2)
		assert.Equal(t, "staff.schedule", perms[0].Key)
		assert.False(t, perms[0].IsInherited)
		assert.Equal(t, "orders.view", perms[1].Key)
		assert.True(t, perms[1].IsInherited)
		require.NotNil(t, perms[1].Condition, "condition survives the JSONB round trip")
		assert.Equal(t, "shift", perms[1].Condition.Field)
	})

	t.Run("cycle rejection", func(t *testing.T) {
		err := manager.Graph().AddEdge(ctx, 1, waiter.ID, mgr.ID)
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("change set commit", func(t *testing.T) {
		cs := NewChangeSet(waiter.ID, []int64{view.ID})
		cs.Stage(schedule.ID, ChangeAdd)
		cs.Stage(view.ID, ChangeRemove)

		result := cs.Commit(ctx, 1, manager.Grants(), nil)
		assert.Equal(t, 2, result.Applied)
		assert.Empty(t, result.Errors)
	})

	t.Run("expired assignment sweep", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Minute)
		_, err := manager.Assignments().Assign(ctx, 1, 501, waiter.ID, nil, &past)
		require.NoError(t, err)

		swept, err := manager.Assignments().SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)
	})
}
