package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PermissionRegistry manages the tenant-shared catalog of permission
// definitions.
type PermissionRegistry struct {
	db *sql.DB
}

// NewPermissionRegistry creates a new permission registry.
func NewPermissionRegistry(db *sql.DB) *PermissionRegistry {
	return &PermissionRegistry{db: db}
}

func validatePermissionFields(key, name, resource, action string) error {
	switch {
	case key == "":
		return &ValidationError{Field: "key", Reason: "must not be empty"}
	case name == "":
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	case resource == "":
		return &ValidationError{Field: "resource", Reason: "must not be empty"}
	case action == "":
		return &ValidationError{Field: "action", Reason: "must not be empty"}
	}
	return nil
}

// Create adds a permission definition to the catalog.
func (r *PermissionRegistry) Create(ctx context.Context, in PermissionInput) (*Permission, error) {
	if err := validatePermissionFields(in.Key, in.Name, in.Resource, in.Action); err != nil {
		return nil, err
	}

	taken, err := r.keyTaken(ctx, in.Key, 0)
	if err != nil {
		return nil, serverErr("create permission", err)
	}
	if taken {
		return nil, &ValidationError{Field: "key", Reason: fmt.Sprintf("%q already exists", in.Key)}
	}

	query := `
		INSERT INTO permissions (key, name, description, resource, action, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	perm := &Permission{
		Key:         in.Key,
		Name:        in.Name,
		Description: in.Description,
		Resource:    in.Resource,
		Action:      in.Action,
		Scope:       in.Scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = r.db.QueryRowContext(ctx, query,
		in.Key, in.Name, in.Description, in.Resource, in.Action, in.Scope, now, now,
	).Scan(&perm.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ValidationError{Field: "key", Reason: fmt.Sprintf("%q already exists", in.Key)}
		}
		return nil, serverErr("create permission", err)
	}

	return perm, nil
}

// Get retrieves a permission by ID.
func (r *PermissionRegistry) Get(ctx context.Context, id int64) (*Permission, error) {
	query := `
		SELECT id, key, name, description, resource, action, scope, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`
	perm, err := scanPermission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "permission", ID: id}
	}
	if err != nil {
		return nil, serverErr("get permission", err)
	}
	return perm, nil
}

// List returns the whole permission catalog ordered by key.
func (r *PermissionRegistry) List(ctx context.Context) ([]Permission, error) {
	query := `
		SELECT id, key, name, description, resource, action, scope, created_at, updated_at
		FROM permissions
		ORDER BY key ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, serverErr("list permissions", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, serverErr("list permissions", err)
		}
		perms = append(perms, *perm)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("list permissions", err)
	}
	return perms, nil
}

// Update modifies a permission definition. Nil fields in up are left as-is.
func (r *PermissionRegistry) Update(ctx context.Context, up PermissionUpdate) (*Permission, error) {
	perm, err := r.Get(ctx, up.ID)
	if err != nil {
		return nil, err
	}

	if up.Key != nil {
		perm.Key = *up.Key
	}
	if up.Name != nil {
		perm.Name = *up.Name
	}
	if up.Description != nil {
		perm.Description = *up.Description
	}
	if up.Resource != nil {
		perm.Resource = *up.Resource
	}
	if up.Action != nil {
		perm.Action = *up.Action
	}
	if up.Scope != nil {
		perm.Scope = *up.Scope
	}

	if err := validatePermissionFields(perm.Key, perm.Name, perm.Resource, perm.Action); err != nil {
		return nil, err
	}

	if up.Key != nil {
		taken, err := r.keyTaken(ctx, perm.Key, perm.ID)
		if err != nil {
			return nil, serverErr("update permission", err)
		}
		if taken {
			return nil, &ValidationError{Field: "key", Reason: fmt.Sprintf("%q already exists", perm.Key)}
		}
	}

	query := `
		UPDATE permissions
		SET key = $1, name = $2, description = $3, resource = $4, action = $5, scope = $6, updated_at = $7
		WHERE id = $8
	`
	perm.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, query,
		perm.Key, perm.Name, perm.Description, perm.Resource, perm.Action, perm.Scope, perm.UpdatedAt, perm.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ValidationError{Field: "key", Reason: fmt.Sprintf("%q already exists", perm.Key)}
		}
		return nil, serverErr("update permission", err)
	}

	return perm, nil
}

// Delete removes a permission definition. It is rejected while any role
// grant still references the permission.
func (r *PermissionRegistry) Delete(ctx context.Context, id int64) error {
	inUse, err := r.inUse(ctx, id)
	if err != nil {
		return serverErr("delete permission", err)
	}
	if inUse {
		return &ReferentialIntegrityError{Message: fmt.Sprintf("%d: in use, cannot delete", id)}
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return serverErr("delete permission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return serverErr("delete permission", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "permission", ID: id}
	}
	return nil
}

// BatchSave validates the whole proposed set first, then applies creates,
// updates, and deletes as independent operations. Items that fail validation
// or application contribute one error each; the rest still apply.
func (r *PermissionRegistry) BatchSave(ctx context.Context, in BatchSaveInput) (*BatchSaveResult, error) {
	result := &BatchSaveResult{Errors: []string{}}

	// Whole-batch duplicate-key detection: count every key the batch would
	// end up with, then flag the duplicated ones.
	keyCount := make(map[string]int)
	for _, c := range in.Creates {
		if c.Key != "" {
			keyCount[c.Key]++
		}
	}
	for _, u := range in.Updates {
		if u.Key != nil && *u.Key != "" {
			keyCount[*u.Key]++
		}
	}

	validCreates := make([]PermissionInput, 0, len(in.Creates))
	for _, c := range in.Creates {
		if err := validatePermissionFields(c.Key, c.Name, c.Resource, c.Action); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", c.Key, err.Error()))
			continue
		}
		if keyCount[c.Key] > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: duplicate key in batch", c.Key))
			continue
		}
		validCreates = append(validCreates, c)
	}

	validUpdates := make([]PermissionUpdate, 0, len(in.Updates))
	for _, u := range in.Updates {
		if u.Key != nil && keyCount[*u.Key] > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: duplicate key in batch", *u.Key))
			continue
		}
		validUpdates = append(validUpdates, u)
	}

	for _, c := range validCreates {
		if _, err := r.Create(ctx, c); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", c.Key, err.Error()))
			continue
		}
		result.Created++
	}

	for _, u := range validUpdates {
		if _, err := r.Update(ctx, u); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%d: %s", u.ID, err.Error()))
			continue
		}
		result.Updated++
	}

	for _, id := range in.Deletes {
		if err := r.Delete(ctx, id); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Deleted++
	}

	return result, nil
}

func (r *PermissionRegistry) keyTaken(ctx context.Context, key string, excludeID int64) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM permissions WHERE key = $1 AND id <> $2`, key, excludeID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PermissionRegistry) inUse(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM role_permissions WHERE permission_id = $1`, id,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPermission scans a permission row.
func scanPermission(scanner interface {
	Scan(dest ...interface{}) error
}) (*Permission, error) {
	var perm Permission
	var description, scope sql.NullString
	err := scanner.Scan(
		&perm.ID,
		&perm.Key,
		&perm.Name,
		&description,
		&perm.Resource,
		&perm.Action,
		&scope,
		&perm.CreatedAt,
		&perm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	perm.Description = description.String
	perm.Scope = scope.String
	return &perm, nil
}
