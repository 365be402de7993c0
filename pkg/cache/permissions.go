// Package cache provides a two-tier read cache for resolved permission sets.
// A local LRU fronts redis; generation counters stored in redis invalidate
// both tiers at once, per tenant when roles, grants, or edges change, and
// globally when the shared permission catalog changes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dineos/accessd/pkg/observability"
	"github.com/dineos/accessd/pkg/rbac"
)

// PermissionCache caches resolved effective-permission sets per tenant.
type PermissionCache struct {
	redis   *redis.Client
	local   *lru.LRU[string, []rbac.EffectivePermission]
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewPermissionCache creates a two-tier cache. metrics may be nil.
func NewPermissionCache(redisClient *redis.Client, localSize int, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *PermissionCache {
	if localSize < 16 {
		localSize = 16
	}
	return &PermissionCache{
		redis:   redisClient,
		local:   lru.NewLRU[string, []rbac.EffectivePermission](localSize, nil, ttl),
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// GetRole returns the cached resolution for a role, if present.
func (c *PermissionCache) GetRole(ctx context.Context, tenantID, roleID int64) ([]rbac.EffectivePermission, bool) {
	return c.get(ctx, tenantID, fmt.Sprintf("role:%d", roleID))
}

// SetRole stores the resolution for a role.
func (c *PermissionCache) SetRole(ctx context.Context, tenantID, roleID int64, perms []rbac.EffectivePermission) {
	c.set(ctx, tenantID, fmt.Sprintf("role:%d", roleID), perms)
}

// GetUser returns the cached resolution for a user, if present.
func (c *PermissionCache) GetUser(ctx context.Context, tenantID, userID int64) ([]rbac.EffectivePermission, bool) {
	return c.get(ctx, tenantID, fmt.Sprintf("user:%d", userID))
}

// SetUser stores the resolution for a user.
func (c *PermissionCache) SetUser(ctx context.Context, tenantID, userID int64, perms []rbac.EffectivePermission) {
	c.set(ctx, tenantID, fmt.Sprintf("user:%d", userID), perms)
}

// InvalidateTenant drops every cached entry for the tenant by bumping its
// generation counter. Stale local entries age out via key mismatch.
func (c *PermissionCache) InvalidateTenant(ctx context.Context, tenantID int64) {
	if err := c.redis.Incr(ctx, generationKey(tenantID)).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("failed to bump cache generation")
	}
}

// InvalidateAll drops cached entries for every tenant by bumping the catalog
// generation counter. Permission definitions are shared across tenants, so a
// catalog change stales all cached resolutions at once.
func (c *PermissionCache) InvalidateAll(ctx context.Context) {
	if err := c.redis.Incr(ctx, catalogGenerationKey).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to bump catalog cache generation")
	}
}

func (c *PermissionCache) get(ctx context.Context, tenantID int64, subject string) ([]rbac.EffectivePermission, bool) {
	catalogGen, tenantGen, err := c.generations(ctx, tenantID)
	if err != nil {
		return nil, false
	}
	key := entryKey(catalogGen, tenantID, tenantGen, subject)

	if perms, ok := c.local.Get(key); ok {
		c.recordHit("local")
		return perms, true
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WithError(err).Debug("redis cache read failed")
		}
		c.recordMiss()
		return nil, false
	}

	var perms []rbac.EffectivePermission
	if err := json.Unmarshal(data, &perms); err != nil {
		c.recordMiss()
		return nil, false
	}

	c.local.Add(key, perms)
	c.recordHit("redis")
	return perms, true
}

func (c *PermissionCache) set(ctx context.Context, tenantID int64, subject string, perms []rbac.EffectivePermission) {
	catalogGen, tenantGen, err := c.generations(ctx, tenantID)
	if err != nil {
		return
	}
	key := entryKey(catalogGen, tenantID, tenantGen, subject)

	c.local.Add(key, perms)

	data, err := json.Marshal(perms)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).Debug("redis cache write failed")
	}
}

// generations reads the catalog and tenant generation counters in one round
// trip. A missing counter reads as zero.
func (c *PermissionCache) generations(ctx context.Context, tenantID int64) (int64, int64, error) {
	vals, err := c.redis.MGet(ctx, catalogGenerationKey, generationKey(tenantID)).Result()
	if err != nil {
		return 0, 0, err
	}
	catalogGen, err := parseGeneration(vals[0])
	if err != nil {
		return 0, 0, err
	}
	tenantGen, err := parseGeneration(vals[1])
	if err != nil {
		return 0, 0, err
	}
	return catalogGen, tenantGen, nil
}

func parseGeneration(val interface{}) (int64, error) {
	if val == nil {
		return 0, nil
	}
	s, ok := val.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected generation value %T", val)
	}
	return strconv.ParseInt(s, 10, 64)
}

func (c *PermissionCache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *PermissionCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
}

const catalogGenerationKey = "accessd:gen:catalog"

func generationKey(tenantID int64) string {
	return fmt.Sprintf("accessd:gen:%d", tenantID)
}

func entryKey(catalogGen, tenantID, tenantGen int64, subject string) string {
	return fmt.Sprintf("accessd:perms:%d:%d:%d:%s", catalogGen, tenantID, tenantGen, subject)
}
