package domain

import "time"

// ShareNotification is one email notification attempt for a share
type ShareNotification struct {
	ID             int64
	ShareID        int64
	NotificationID string
	RecipientEmail string
	SentAt         time.Time
	Delivered      bool
	DeliveredAt    *time.Time
	Attempts       int
	LastError      string
}

// IsRetryableAt returns true if the notification is undelivered and still
// inside the retry window
func (n *ShareNotification) IsRetryableAt(now time.Time, maxAge time.Duration) bool {
	if n.Delivered {
		return false
	}
	return n.SentAt.After(now.Add(-maxAge))
}

// MarkDelivered flips the delivered flag. It never reverts.
func (n *ShareNotification) MarkDelivered(at time.Time) {
	if n.Delivered {
		return
	}
	n.Delivered = true
	n.DeliveredAt = &at
	n.LastError = ""
}

// NotificationResult is the per-recipient outcome of a notify call
type NotificationResult struct {
	Recipient      string `json:"recipient"`
	NotificationID string `json:"notification_id,omitempty"`
	Delivered      bool   `json:"delivered"`
	Error          string `json:"error,omitempty"`
}
