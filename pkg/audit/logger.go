package audit

import (
	"context"
	"time"

	"github.com/dineos/accessd/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// LogMutation records a successful state change on a resource
	LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, message string) error

	// LogFailure records a failed operation
	LogFailure(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, err error) error

	// LogDenied records a denied permission check
	LogDenied(ctx context.Context, permissionKey string, message string) error

	// Close flushes any buffered events
	Close() error
}

// NewEvent creates an event with actor and request fields populated from the
// context.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}

	if tenantID, ok := contextkeys.TenantID(ctx); ok {
		event.TenantID = &tenantID
	}
	if actorID, ok := contextkeys.UserID(ctx); ok {
		event.ActorID = &actorID
	}
	if requestID := contextkeys.RequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}

	return event
}

// NopLogger discards all events. Used when auditing is disabled.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (NopLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, message string) error {
	return nil
}

func (NopLogger) LogFailure(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, err error) error {
	return nil
}

func (NopLogger) LogDenied(ctx context.Context, permissionKey string, message string) error {
	return nil
}

func (NopLogger) Close() error {
	return nil
}
