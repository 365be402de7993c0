package rbac

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ValidationError indicates a missing or duplicate required field. It is
// returned before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError indicates a referenced role, permission, or assignment does
// not exist or is outside the caller's tenant.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Kind, e.ID)
}

// CycleError indicates an inheritance edge that would let a role transitively
// inherit from itself.
type CycleError struct {
	ParentRoleID int64
	ChildRoleID  int64
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("inheritance edge %d->%d would create a cycle", e.ParentRoleID, e.ChildRoleID)
}

// ImmutableRoleError indicates an attempted mutation of the owner role's core
// identity or inheritance participation, or a protected field of a system role.
type ImmutableRoleError struct {
	RoleID int64
	Reason string
}

func (e *ImmutableRoleError) Error() string {
	return fmt.Sprintf("role %d is immutable: %s", e.RoleID, e.Reason)
}

// ConflictError indicates a duplicate grant or edge. Callers treat it as an
// idempotent no-op; it exists so storage-level unique violations have a typed
// shape when they do surface.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Detail)
}

// ReferentialIntegrityError indicates a delete was rejected because dependent
// rows still reference the entity.
type ReferentialIntegrityError struct {
	Message string
}

func (e *ReferentialIntegrityError) Error() string {
	return e.Message
}

// ServerError wraps an unexpected storage failure. The caller sees the
// operation name only; the underlying error stays in the logs.
type ServerError struct {
	Op  string
	Err error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// serverErr wraps err as a ServerError unless it already carries one of the
// engine's typed errors.
func serverErr(op string, err error) error {
	var ve *ValidationError
	var nf *NotFoundError
	var ce *CycleError
	var ie *ImmutableRoleError
	var re *ReferentialIntegrityError
	var cf *ConflictError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ce) ||
		errors.As(err, &ie) || errors.As(err, &re) || errors.As(err, &cf) {
		return err
	}
	return &ServerError{Op: op, Err: err}
}

// isUniqueViolation reports whether err is a unique-constraint violation from
// the postgres driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
