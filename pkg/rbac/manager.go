package rbac

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dineos/accessd/pkg/audit"
	"github.com/dineos/accessd/pkg/observability"
)

// ResolveCache caches resolved permission sets. Implementations must treat a
// miss as (nil, false); the manager falls through to the resolver.
type ResolveCache interface {
	GetRole(ctx context.Context, tenantID, roleID int64) ([]EffectivePermission, bool)
	SetRole(ctx context.Context, tenantID, roleID int64, perms []EffectivePermission)
	GetUser(ctx context.Context, tenantID, userID int64) ([]EffectivePermission, bool)
	SetUser(ctx context.Context, tenantID, userID int64, perms []EffectivePermission)
	InvalidateTenant(ctx context.Context, tenantID int64)
	InvalidateAll(ctx context.Context)
}

// ManagerOptions configures optional manager collaborators.
type ManagerOptions struct {
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Audit         audit.Logger
	Cache         ResolveCache
	SweepSchedule string
}

// Manager wires the access-control stores together and owns the background
// sweeper for expired assignments.
type Manager struct {
	db          *sql.DB
	registry    *PermissionRegistry
	roles       *RoleStore
	graph       *InheritanceGraph
	grants      *GrantStore
	assignments *AssignmentStore
	resolver    *Resolver

	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
	cache   ResolveCache

	sweepSchedule string
	cron          *cron.Cron
}

// NewManager creates a manager over an open database handle.
func NewManager(db *sql.DB, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	auditLogger := opts.Audit
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	registry := NewPermissionRegistry(db)
	roles := NewRoleStore(db)
	graph := NewInheritanceGraph(db, roles)
	grants := NewGrantStore(db, roles)
	assignments := NewAssignmentStore(db, roles)
	resolver := NewResolver(registry, roles, grants, graph, assignments)

	return &Manager{
		db:            db,
		registry:      registry,
		roles:         roles,
		graph:         graph,
		grants:        grants,
		assignments:   assignments,
		resolver:      resolver,
		logger:        logger,
		metrics:       opts.Metrics,
		audit:         auditLogger,
		cache:         opts.Cache,
		sweepSchedule: opts.SweepSchedule,
	}
}

// Bootstrap runs schema migrations.
func (m *Manager) Bootstrap(ctx context.Context) error {
	return RunMigrations(ctx, m.db)
}

// EnsureTenant seeds the system roles for a tenant. Safe to call repeatedly.
func (m *Manager) EnsureTenant(ctx context.Context, tenantID int64) error {
	return SeedSystemRoles(ctx, m.db, tenantID)
}

// Registry returns the permission catalog store.
func (m *Manager) Registry() *PermissionRegistry { return m.registry }

// Roles returns the role store.
func (m *Manager) Roles() *RoleStore { return m.roles }

// Graph returns the inheritance graph.
func (m *Manager) Graph() *InheritanceGraph { return m.graph }

// Grants returns the grant store.
func (m *Manager) Grants() *GrantStore { return m.grants }

// Assignments returns the user-role assignment store.
func (m *Manager) Assignments() *AssignmentStore { return m.assignments }

// Resolver returns the uncached resolver.
func (m *Manager) Resolver() *Resolver { return m.resolver }

// Audit returns the audit logger.
func (m *Manager) Audit() audit.Logger { return m.audit }

// ResolveForRole resolves a role's effective permissions through the cache.
func (m *Manager) ResolveForRole(ctx context.Context, tenantID, roleID int64) ([]EffectivePermission, error) {
	if m.cache != nil {
		if perms, ok := m.cache.GetRole(ctx, tenantID, roleID); ok {
			return perms, nil
		}
	}

	start := time.Now()
	perms, err := m.resolver.ResolveForRole(ctx, tenantID, roleID)
	if m.metrics != nil {
		m.metrics.ObserveResolve("role", time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		m.cache.SetRole(ctx, tenantID, roleID, perms)
	}
	return perms, nil
}

// ResolveForUser resolves a user's effective permissions through the cache.
func (m *Manager) ResolveForUser(ctx context.Context, tenantID, userID int64) ([]EffectivePermission, error) {
	if m.cache != nil {
		if perms, ok := m.cache.GetUser(ctx, tenantID, userID); ok {
			return perms, nil
		}
	}

	start := time.Now()
	perms, err := m.resolver.ResolveForUser(ctx, tenantID, userID)
	if m.metrics != nil {
		m.metrics.ObserveResolve("user", time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		m.cache.SetUser(ctx, tenantID, userID, perms)
	}
	return perms, nil
}

// Invalidate drops cached resolutions for a tenant. Called after any mutation
// that can change resolution results.
func (m *Manager) Invalidate(ctx context.Context, tenantID int64) {
	if m.cache != nil {
		m.cache.InvalidateTenant(ctx, tenantID)
	}
}

// InvalidateAll drops cached resolutions for every tenant. The permission
// catalog is shared, so catalog mutations must stale all tenants, most
// visibly owner resolutions which mirror the full catalog.
func (m *Manager) InvalidateAll(ctx context.Context) {
	if m.cache != nil {
		m.cache.InvalidateAll(ctx)
	}
}

// observe records an engine operation outcome.
func (m *Manager) observe(operation string, err error) {
	if m.metrics != nil {
		m.metrics.ObserveEngineOperation(operation, err)
	}
}

// StartSweeper schedules the expired-assignment sweep. No-op when the
// schedule is empty.
func (m *Manager) StartSweeper(ctx context.Context) error {
	if m.sweepSchedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(m.sweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m.sweepExpired(sweepCtx)
	})
	if err != nil {
		return err
	}

	c.Start()
	m.cron = c

	go func() {
		<-ctx.Done()
		m.StopSweeper()
	}()

	return nil
}

// StopSweeper stops the background sweep, waiting for a running job.
func (m *Manager) StopSweeper() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.cron = nil
	}
}

func (m *Manager) sweepExpired(ctx context.Context) {
	removed, err := m.assignments.SweepExpired(ctx)
	if err != nil {
		m.logger.WithError(err).Error("expired assignment sweep failed")
		return
	}
	if removed > 0 {
		m.logger.WithField("removed", removed).Info("swept expired role assignments")
		if m.metrics != nil {
			m.metrics.AssignmentsSweptTotal.Add(float64(removed))
		}
	}
}
