package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// GrantStore manages the many-to-many association between roles and
// permissions.
type GrantStore struct {
	db    *sql.DB
	roles *RoleStore
}

// NewGrantStore creates a new grant store.
func NewGrantStore(db *sql.DB, roles *RoleStore) *GrantStore {
	return &GrantStore{db: db, roles: roles}
}

// Assign grants a permission to a role. Re-assigning an existing grant is an
// idempotent no-op. The owner role never takes explicit grants.
func (s *GrantStore) Assign(ctx context.Context, tenantID, roleID, permissionID int64, cond *Condition, grantedBy *int64) error {
	role, err := s.roles.Get(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.Kind() == KindOwner {
		return &ImmutableRoleError{RoleID: roleID, Reason: "the owner role holds all permissions implicitly"}
	}

	var exists int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM permissions WHERE id = $1`, permissionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return &NotFoundError{Kind: "permission", ID: permissionID}
	}
	if err != nil {
		return serverErr("assign permission", err)
	}

	var condJSON interface{}
	if cond != nil {
		if cond.Field == "" {
			return &ValidationError{Field: "condition.field", Reason: "must not be empty"}
		}
		if !cond.Operator.Valid() {
			return &ValidationError{Field: "condition.operator", Reason: "must be one of =, !=, in, not_in"}
		}
		raw, err := json.Marshal(cond)
		if err != nil {
			return serverErr("assign permission", err)
		}
		condJSON = string(raw)
	}

	query := `
		INSERT INTO role_permissions (role_id, permission_id, condition, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query, roleID, permissionID, condJSON, grantedBy, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return serverErr("assign permission", err)
	}
	return nil
}

// Remove revokes a permission from a role. Revoking a grant that does not
// exist reports not found.
func (s *GrantStore) Remove(ctx context.Context, tenantID, roleID, permissionID int64) error {
	if _, err := s.roles.Get(ctx, tenantID, roleID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return serverErr("revoke permission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return serverErr("revoke permission", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "grant", ID: permissionID}
	}
	return nil
}

// ForRole returns the direct grants of a role ordered by permission id.
func (s *GrantStore) ForRole(ctx context.Context, tenantID, roleID int64) ([]Grant, error) {
	if _, err := s.roles.Get(ctx, tenantID, roleID); err != nil {
		return nil, err
	}

	query := `
		SELECT role_id, permission_id, condition, granted_by, granted_at
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY permission_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, serverErr("list grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ForTenant returns every grant of the tenant's roles, ordered by role then
// permission id. The resolver uses this as its single grants read.
func (s *GrantStore) ForTenant(ctx context.Context, tenantID int64) ([]Grant, error) {
	query := `
		SELECT rp.role_id, rp.permission_id, rp.condition, rp.granted_by, rp.granted_at
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		WHERE r.tenant_id = $1
		ORDER BY rp.role_id ASC, rp.permission_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, serverErr("list tenant grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func scanGrants(rows *sql.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		var g Grant
		var condJSON sql.NullString
		var grantedBy sql.NullInt64
		if err := rows.Scan(&g.RoleID, &g.PermissionID, &condJSON, &grantedBy, &g.GrantedAt); err != nil {
			return nil, serverErr("scan grant", err)
		}
		if condJSON.Valid && condJSON.String != "" {
			var cond Condition
			if err := json.Unmarshal([]byte(condJSON.String), &cond); err != nil {
				return nil, serverErr("scan grant", err)
			}
			g.Condition = &cond
		}
		if grantedBy.Valid {
			gb := grantedBy.Int64
			g.GrantedBy = &gb
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("scan grant", err)
	}
	return grants, nil
}
