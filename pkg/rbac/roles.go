package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RoleStore manages role definitions for a tenant.
type RoleStore struct {
	db *sql.DB
}

// NewRoleStore creates a new role store.
func NewRoleStore(db *sql.DB) *RoleStore {
	return &RoleStore{db: db}
}

// Create adds a custom role to the tenant. The owner role is seeded at tenant
// bootstrap and cannot be created through this path.
func (s *RoleStore) Create(ctx context.Context, tenantID int64, name, description string, roleType RoleType) (*Role, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !roleType.Valid() {
		return nil, &ValidationError{Field: "role_type", Reason: fmt.Sprintf("unknown role type %q", roleType)}
	}
	if roleType.Kind() == KindOwner {
		return nil, &ValidationError{Field: "role_type", Reason: "the owner role is seeded and cannot be created"}
	}

	taken, err := s.nameTaken(ctx, tenantID, name, 0)
	if err != nil {
		return nil, serverErr("create role", err)
	}
	if taken {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%q already used in tenant", name)}
	}

	query := `
		INSERT INTO roles (tenant_id, name, description, role_type, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	role := &Role{
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		RoleType:    roleType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.db.QueryRowContext(ctx, query,
		tenantID, name, description, roleType, false, now, now,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%q already used in tenant", name)}
		}
		return nil, serverErr("create role", err)
	}

	return role, nil
}

// Get retrieves a role by ID within the tenant. Roles outside the tenant are
// reported as not found.
func (s *RoleStore) Get(ctx context.Context, tenantID, roleID int64) (*Role, error) {
	query := `
		SELECT id, tenant_id, name, description, role_type, is_system_role, created_at, updated_at
		FROM roles
		WHERE id = $1 AND tenant_id = $2
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID, tenantID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "role", ID: roleID}
	}
	if err != nil {
		return nil, serverErr("get role", err)
	}
	return role, nil
}

// List returns all roles of the tenant, system roles first.
func (s *RoleStore) List(ctx context.Context, tenantID int64) ([]Role, error) {
	query := `
		SELECT id, tenant_id, name, description, role_type, is_system_role, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1
		ORDER BY is_system_role DESC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, serverErr("list roles", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, serverErr("list roles", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("list roles", err)
	}
	return roles, nil
}

// Owner returns the tenant's owner role.
func (s *RoleStore) Owner(ctx context.Context, tenantID int64) (*Role, error) {
	query := `
		SELECT id, tenant_id, name, description, role_type, is_system_role, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 AND role_type = $2
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, tenantID, RoleTypeOwner))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "owner role", ID: tenantID}
	}
	if err != nil {
		return nil, serverErr("get owner role", err)
	}
	return role, nil
}

// Update modifies a role. System roles and the owner role accept description
// changes only.
func (s *RoleStore) Update(ctx context.Context, tenantID, roleID int64, up RoleUpdate) (*Role, error) {
	role, err := s.Get(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}

	protected := role.IsSystemRole || role.Kind() == KindOwner
	if up.Name != nil && *up.Name != role.Name {
		if protected {
			return nil, &ImmutableRoleError{RoleID: roleID, Reason: "only the description of a system role may change"}
		}
		if *up.Name == "" {
			return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
		}
		taken, err := s.nameTaken(ctx, tenantID, *up.Name, roleID)
		if err != nil {
			return nil, serverErr("update role", err)
		}
		if taken {
			return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%q already used in tenant", *up.Name)}
		}
		role.Name = *up.Name
	}
	if up.Description != nil {
		role.Description = *up.Description
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5
	`
	role.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query, role.Name, role.Description, role.UpdatedAt, roleID, tenantID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%q already used in tenant", role.Name)}
		}
		return nil, serverErr("update role", err)
	}

	return role, nil
}

// Delete removes an ordinary role together with its grants, its inheritance
// edges in both directions, and its user assignments, in one transaction.
// System roles cannot be deleted.
func (s *RoleStore) Delete(ctx context.Context, tenantID, roleID int64) error {
	role, err := s.Get(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole || role.Kind() == KindOwner {
		return &ImmutableRoleError{RoleID: roleID, Reason: "system roles cannot be deleted"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serverErr("delete role", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return serverErr("delete role grants", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_inheritance WHERE parent_role_id = $1`, roleID); err != nil {
		return serverErr("delete role inheritance", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_inheritance WHERE child_role_id = $1`, roleID); err != nil {
		return serverErr("delete role inheritance", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
		return serverErr("delete role assignments", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return serverErr("delete role", err)
	}

	if err := tx.Commit(); err != nil {
		return serverErr("delete role", err)
	}
	return nil
}

func (s *RoleStore) nameTaken(ctx context.Context, tenantID int64, name string, excludeID int64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE tenant_id = $1 AND name = $2 AND id <> $3`,
		tenantID, name, excludeID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// scanRole scans a role row.
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var description sql.NullString
	err := scanner.Scan(
		&role.ID,
		&role.TenantID,
		&role.Name,
		&description,
		&role.RoleType,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.Description = description.String
	return &role, nil
}
