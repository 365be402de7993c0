package audit

import (
	"context"
	"time"

	"github.com/dineos/accessd/pkg/async"
	"github.com/dineos/accessd/pkg/observability"
)

// AsyncLogger wraps another Logger and moves the write off the request path.
// Events are built synchronously, so principal and request-id fields are
// captured before the request context is released; only the storage write
// happens on the pool.
type AsyncLogger struct {
	inner Logger
	pool  *async.Pool
}

// NewAsyncLogger creates an async wrapper around inner. Writes that are still
// queued when Close is called are drained before Close returns.
func NewAsyncLogger(inner Logger, logger *observability.Logger) *AsyncLogger {
	return &AsyncLogger{
		inner: inner,
		pool:  async.NewPool(context.Background(), 2, "audit write", 10*time.Second, logger),
	}
}

// Log queues the event for writing. A full queue blocks briefly rather than
// dropping the event.
func (l *AsyncLogger) Log(_ context.Context, event *Event) error {
	return l.pool.Submit(func(ctx context.Context) error {
		return l.inner.Log(ctx, event)
	})
}

func (l *AsyncLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, message string) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return l.Log(ctx, event)
}

func (l *AsyncLogger) LogFailure(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, opErr error) error {
	event := NewEvent(ctx, eventType, EventStatusFailure)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	if opErr != nil {
		event.ErrorMessage = opErr.Error()
	}
	return l.Log(ctx, event)
}

func (l *AsyncLogger) LogDenied(ctx context.Context, permissionKey string, message string) error {
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = ResourceTypePermission
	event.ResourceID = permissionKey
	event.Message = message
	return l.Log(ctx, event)
}

// Close drains pending writes and closes the wrapped logger.
func (l *AsyncLogger) Close() error {
	if err := l.pool.Shutdown(30 * time.Second); err != nil {
		return err
	}
	return l.inner.Close()
}
