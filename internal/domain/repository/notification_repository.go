package repository

import (
	"context"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// NotificationRepository defines the interface for share notification tracking
type NotificationRepository interface {
	// CreateNotification inserts a notification row and sets its ID
	CreateNotification(ctx context.Context, n *domain.ShareNotification) error

	// MarkNotificationDelivered flips delivered to true
	// Returns false if the notification was unknown or already delivered
	MarkNotificationDelivered(ctx context.Context, notificationID string, at time.Time) (bool, error)

	// RecordNotificationFailure bumps the attempt counter and stores the error
	RecordNotificationFailure(ctx context.Context, notificationID string, errMsg string) error

	// ListUndeliveredSince returns undelivered notifications sent after since
	ListUndeliveredSince(ctx context.Context, since time.Time) ([]*domain.ShareNotification, error)

	// GetNotificationStats aggregates notifications of one share
	GetNotificationStats(ctx context.Context, shareID int64) (*domain.NotificationStats, error)

	// DeleteUndeliveredBefore hard-deletes permanently failed notifications
	DeleteUndeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
