package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineos/accessd/pkg/observability"
	"github.com/dineos/accessd/pkg/rbac"
)

func newTestCache(t *testing.T) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewPermissionCache(client, 64, time.Minute, nil, logger), mr
}

func samplePerms() []rbac.EffectivePermission {
	return []rbac.EffectivePermission{
		{PermissionID: 1, Key: "orders.create", IsInherited: false, SourceRoleID: 10},
		{PermissionID: 2, Key: "orders.read", IsInherited: true, SourceRoleID: 11},
	}
}

func TestRoleRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetRole(ctx, 1, 10)
	assert.False(t, ok)

	c.SetRole(ctx, 1, 10, samplePerms())

	got, ok := c.GetRole(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, samplePerms(), got)
}

func TestUserRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetUser(ctx, 1, 42, samplePerms())

	got, ok := c.GetUser(ctx, 1, 42)
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, "orders.create", got[0].Key)
}

func TestInvalidateTenant(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetRole(ctx, 1, 10, samplePerms())
	_, ok := c.GetRole(ctx, 1, 10)
	require.True(t, ok)

	c.InvalidateTenant(ctx, 1)

	_, ok = c.GetRole(ctx, 1, 10)
	assert.False(t, ok, "entries from the previous generation must not be served")
}

func TestInvalidateIsTenantScoped(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetRole(ctx, 1, 10, samplePerms())
	c.SetRole(ctx, 2, 20, samplePerms())

	c.InvalidateTenant(ctx, 1)

	_, ok := c.GetRole(ctx, 1, 10)
	assert.False(t, ok)
	_, ok = c.GetRole(ctx, 2, 20)
	assert.True(t, ok, "other tenants keep their cached entries")
}

func TestInvalidateAllDropsEveryTenant(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetRole(ctx, 1, 10, samplePerms())
	c.SetRole(ctx, 2, 20, samplePerms())
	c.SetUser(ctx, 3, 42, samplePerms())

	c.InvalidateAll(ctx)

	_, ok := c.GetRole(ctx, 1, 10)
	assert.False(t, ok)
	_, ok = c.GetRole(ctx, 2, 20)
	assert.False(t, ok)
	_, ok = c.GetUser(ctx, 3, 42)
	assert.False(t, ok)

	// per-tenant invalidation still works on the new catalog generation
	c.SetRole(ctx, 1, 10, samplePerms())
	c.InvalidateTenant(ctx, 1)
	_, ok = c.GetRole(ctx, 1, 10)
	assert.False(t, ok)
}

func TestRedisTierSurvivesLocalEviction(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetRole(ctx, 1, 10, samplePerms())

	// Drop the local tier only; the redis entry is still valid.
	c.local.Purge()
	require.True(t, mr.Exists("accessd:perms:0:1:0:role:10"))

	got, ok := c.GetRole(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, samplePerms(), got)
}
