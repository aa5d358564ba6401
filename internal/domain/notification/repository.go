package notification

import (
	"context"
)

// Repository is the append-only notification log.
type Repository interface {
	CreateBatch(ctx context.Context, notifications []*Notification) error
	ListRecent(ctx context.Context, limit int) ([]*Notification, error)
}
