package repository

import (
	"context"

	"fleetops/internal/domain"
)

// NotificationRepository defines the persistence operations for notifications.
type NotificationRepository interface {
	// Create inserts the notification in a single statement.
	Create(ctx context.Context, n *domain.Notification) error

	// GetByID retrieves a notification by ID.
	GetByID(ctx context.Context, id string) (*domain.Notification, error)

	// List retrieves notifications matching the filter, newest first.
	List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error)

	// MarkRead flips is_read for one notification.
	MarkRead(ctx context.Context, id string) error

	// MarkAllRead flips is_read for every notification matching the filter
	// and returns how many changed.
	MarkAllRead(ctx context.Context, filter domain.NotificationFilter) (int64, error)

	// CountUnread counts unread notifications matching the filter.
	CountUnread(ctx context.Context, filter domain.NotificationFilter) (int64, error)
}
