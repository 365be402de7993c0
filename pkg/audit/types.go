package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Catalog events
	EventTypePermissionCreate EventType = "catalog.permission_create"
	EventTypePermissionUpdate EventType = "catalog.permission_update"
	EventTypePermissionDelete EventType = "catalog.permission_delete"
	EventTypeCatalogBatchSave EventType = "catalog.batch_save"

	// Tenant events
	EventTypeTenantBootstrap EventType = "tenant.bootstrap"

	// Role events
	EventTypeRoleCreate EventType = "role.create"
	EventTypeRoleUpdate EventType = "role.update"
	EventTypeRoleDelete EventType = "role.delete"

	// Authorization events
	EventTypeAuthzGrantAdd         EventType = "authz.grant_add"
	EventTypeAuthzGrantRemove      EventType = "authz.grant_remove"
	EventTypeAuthzEdgeAdd          EventType = "authz.edge_add"
	EventTypeAuthzEdgeRemove       EventType = "authz.edge_remove"
	EventTypeAuthzAssignmentAdd    EventType = "authz.assignment_add"
	EventTypeAuthzAssignmentRemove EventType = "authz.assignment_remove"
	EventTypeAuthzChangeSetCommit  EventType = "authz.changeset_commit"
	EventTypeAuthzPermissionCheck  EventType = "authz.permission_check"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeTenant     ResourceType = "tenant"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeEdge       ResourceType = "edge"
	ResourceTypeAssignment ResourceType = "assignment"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	TenantID *int64 `json:"tenant_id,omitempty"`
	ActorID  *int64 `json:"actor_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	TenantID *int64
	ActorID  *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
