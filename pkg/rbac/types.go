package rbac

import (
	"encoding/json"
	"time"
)

// RoleType classifies a role within a tenant. The fixed types are seeded as
// system roles when a tenant is bootstrapped; RoleTypeCustom is for roles the
// tenant owner creates.
type RoleType string

const (
	RoleTypeOwner      RoleType = "owner"
	RoleTypeAdmin      RoleType = "admin"
	RoleTypeManager    RoleType = "manager"
	RoleTypeSupervisor RoleType = "supervisor"
	RoleTypeCashier    RoleType = "cashier"
	RoleTypeWaiter     RoleType = "waiter"
	RoleTypeKitchen    RoleType = "kitchen"
	RoleTypeCustom     RoleType = "custom"
)

// Valid reports whether t is one of the known role types.
func (t RoleType) Valid() bool {
	switch t {
	case RoleTypeOwner, RoleTypeAdmin, RoleTypeManager, RoleTypeSupervisor,
		RoleTypeCashier, RoleTypeWaiter, RoleTypeKitchen, RoleTypeCustom:
		return true
	}
	return false
}

// RoleKind is the behavioral variant of a role. The owner kind holds every
// permission implicitly, takes no explicit grants, and cannot participate in
// inheritance edges. Everything else is standard.
type RoleKind int

const (
	KindStandard RoleKind = iota
	KindOwner
)

// Kind returns the behavioral variant for the role type.
func (t RoleType) Kind() RoleKind {
	if t == RoleTypeOwner {
		return KindOwner
	}
	return KindStandard
}

// Permission is an atomic checkable capability in the tenant-shared catalog,
// e.g. key "orders.view".
type Permission struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Scope       string    `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named bundle of permissions assignable to users, scoped to a
// tenant.
type Role struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	RoleType     RoleType  `json:"role_type"`
	IsSystemRole bool      `json:"is_system_role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Kind returns the behavioral variant of the role.
func (r *Role) Kind() RoleKind {
	return r.RoleType.Kind()
}

// ConditionOperator is the comparison applied by a grant condition.
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "="
	OpNotEquals ConditionOperator = "!="
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
)

// Valid reports whether op is a supported operator.
func (op ConditionOperator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition is the single optional restriction clause a grant may carry.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    json.RawMessage   `json:"value"`
}

// Grant is a direct association of a permission to a role.
type Grant struct {
	RoleID       int64      `json:"role_id"`
	PermissionID int64      `json:"permission_id"`
	Condition    *Condition `json:"condition,omitempty"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `json:"granted_at"`
}

// InheritanceEdge states that the parent role inherits every permission the
// child role has, directly or transitively.
type InheritanceEdge struct {
	TenantID     int64     `json:"tenant_id"`
	ParentRoleID int64     `json:"parent_role_id"`
	ChildRoleID  int64     `json:"child_role_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Assignment binds a user to a role within a tenant. ExpiresAt, when set,
// makes the assignment invisible to reads after that instant; a background
// sweep removes the row.
type Assignment struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	TenantID   int64      `json:"tenant_id"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// EffectivePermission is one entry of a resolved permission set. SourceRoleID
// is the role the grant came from; IsInherited is false only for the direct
// grants of the role being resolved.
type EffectivePermission struct {
	PermissionID int64      `json:"permission_id"`
	Key          string     `json:"key"`
	IsInherited  bool       `json:"is_inherited"`
	SourceRoleID int64      `json:"source_role_id"`
	Condition    *Condition `json:"condition,omitempty"`
}

// ForestEntry is one row of the display-ordered inheritance forest.
type ForestEntry struct {
	Role  Role `json:"role"`
	Depth int  `json:"depth"`
}

// PermissionInput carries the fields for creating a permission definition.
type PermissionInput struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Scope       string `json:"scope,omitempty"`
}

// PermissionUpdate carries the fields for updating a permission definition.
// Nil fields are left unchanged.
type PermissionUpdate struct {
	ID          int64   `json:"id"`
	Key         *string `json:"key,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Resource    *string `json:"resource,omitempty"`
	Action      *string `json:"action,omitempty"`
	Scope       *string `json:"scope,omitempty"`
}

// BatchSaveInput is a staged set of permission catalog changes applied as one
// reported-atomic operation.
type BatchSaveInput struct {
	Creates []PermissionInput  `json:"creates"`
	Updates []PermissionUpdate `json:"updates"`
	Deletes []int64            `json:"deletes"`
}

// BatchSaveResult reports per-item outcomes of a BatchSave. Partial success
// is expected: counts cover the items that applied, Errors carries one entry
// per failing item.
type BatchSaveResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// RoleUpdate carries the mutable fields of a role. Nil fields are left
// unchanged.
type RoleUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// systemRoles is the fixed role set seeded for every tenant.
var systemRoles = []struct {
	Name        string
	Description string
	RoleType    RoleType
}{
	{"Owner", "Tenant owner with implicit access to everything", RoleTypeOwner},
	{"Admin", "Full administrative access", RoleTypeAdmin},
	{"Manager", "Shift and staff management", RoleTypeManager},
	{"Supervisor", "Floor supervision", RoleTypeSupervisor},
	{"Cashier", "Register and payment operations", RoleTypeCashier},
	{"Waiter", "Table service", RoleTypeWaiter},
	{"Kitchen", "Kitchen display and order preparation", RoleTypeKitchen},
}
