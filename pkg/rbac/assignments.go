package rbac

import (
	"context"
	"database/sql"
	"time"
)

// AssignmentStore manages user-to-role assignments within a tenant.
type AssignmentStore struct {
	db    *sql.DB
	roles *RoleStore
}

// NewAssignmentStore creates a new assignment store.
func NewAssignmentStore(db *sql.DB, roles *RoleStore) *AssignmentStore {
	return &AssignmentStore{db: db, roles: roles}
}

// Assign gives a user a role. Re-assigning an existing pair is an idempotent
// no-op.
func (s *AssignmentStore) Assign(ctx context.Context, tenantID, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (*Assignment, error) {
	if _, err := s.roles.Get(ctx, tenantID, roleID); err != nil {
		return nil, err
	}

	existing, err := s.get(ctx, userID, roleID)
	if err != nil && err != sql.ErrNoRows {
		return nil, serverErr("assign role", err)
	}
	if err == nil {
		return existing, nil
	}

	query := `
		INSERT INTO user_roles (user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	a := &Assignment{
		UserID:     userID,
		RoleID:     roleID,
		TenantID:   tenantID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
	err = s.db.QueryRowContext(ctx, query,
		userID, roleID, tenantID, assignedBy, a.AssignedAt, expiresAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return s.getAssignment(ctx, userID, roleID)
		}
		return nil, serverErr("assign role", err)
	}
	return a, nil
}

// Remove revokes a role from a user.
func (s *AssignmentStore) Remove(ctx context.Context, tenantID, userID, roleID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 AND tenant_id = $3`,
		userID, roleID, tenantID)
	if err != nil {
		return serverErr("remove role assignment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return serverErr("remove role assignment", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "role assignment", ID: roleID}
	}
	return nil
}

// ForUser returns the user's unexpired assignments within the tenant, oldest
// assignment first. Resolution visits roles in this order, so when two roles
// grant the same permission the earliest-assigned role is credited.
func (s *AssignmentStore) ForUser(ctx context.Context, tenantID, userID int64) ([]Assignment, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at
		FROM user_roles
		WHERE user_id = $1 AND tenant_id = $2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY assigned_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, tenantID, time.Now().UTC())
	if err != nil {
		return nil, serverErr("list assignments", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, serverErr("list assignments", err)
		}
		assignments = append(assignments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("list assignments", err)
	}
	return assignments, nil
}

// SweepExpired deletes assignments whose expiry has passed and returns the
// number of rows removed. Run periodically by the manager.
func (s *AssignmentStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, serverErr("sweep expired assignments", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, serverErr("sweep expired assignments", err)
	}
	return affected, nil
}

func (s *AssignmentStore) get(ctx context.Context, userID, roleID int64) (*Assignment, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at
		FROM user_roles
		WHERE user_id = $1 AND role_id = $2
	`
	return scanAssignment(s.db.QueryRowContext(ctx, query, userID, roleID))
}

func (s *AssignmentStore) getAssignment(ctx context.Context, userID, roleID int64) (*Assignment, error) {
	a, err := s.get(ctx, userID, roleID)
	if err != nil {
		return nil, serverErr("get role assignment", err)
	}
	return a, nil
}

func scanAssignment(scanner interface {
	Scan(dest ...interface{}) error
}) (*Assignment, error) {
	var a Assignment
	var assignedBy sql.NullInt64
	var expiresAt sql.NullTime
	err := scanner.Scan(&a.ID, &a.UserID, &a.RoleID, &a.TenantID, &assignedBy, &a.AssignedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	if assignedBy.Valid {
		ab := assignedBy.Int64
		a.AssignedBy = &ab
	}
	if expiresAt.Valid {
		ea := expiresAt.Time
		a.ExpiresAt = &ea
	}
	return &a, nil
}
