package notification

import (
	"context"
)

// Publisher is the fire-and-forget side used by the attendance pipeline.
type Publisher interface {
	// Publish queues an event for delivery. It never blocks on delivery and
	// a failure never affects the caller's write.
	Publish(ctx context.Context, event EventName, personID *string, data map[string]interface{}) error
}

// Service adds subscription and lifecycle to Publisher.
type Service interface {
	Publisher

	// Subscribe registers a live listener on a channel.
	Subscribe(ctx context.Context, channel string) (<-chan SSEEvent, func())

	// Recent returns the latest logged notifications.
	Recent(ctx context.Context, limit int) ([]NotificationResponse, error)

	// Stop drains the queue and stops the workers.
	Stop()
}
