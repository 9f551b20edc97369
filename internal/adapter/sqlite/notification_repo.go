package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// CreateNotification inserts a notification row
func (s *Store) CreateNotification(ctx context.Context, n *domain.ShareNotification) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if n.Attempts <= 0 {
		n.Attempts = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO share_notifications (share_id, notification_id, recipient_email, sent_at,
			delivered, delivered_at, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ShareID, n.NotificationID, n.RecipientEmail, toMillis(n.SentAt),
		n.Delivered, nullMillis(n.DeliveredAt), n.Attempts, n.LastError)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrAlreadyExists
		}
		return s.wrapErr("create notification", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.wrapErr("create notification", err)
	}
	n.ID = id

	return nil
}

// MarkNotificationDelivered flips delivered to true after a successful resend.
// A delivered row never reverts.
func (s *Store) MarkNotificationDelivered(ctx context.Context, notificationID string, at time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE share_notifications SET delivered = 1, delivered_at = ?, attempts = attempts + 1, last_error = ''
		WHERE notification_id = ? AND delivered = 0
	`, toMillis(at), notificationID)
	if err != nil {
		return false, s.wrapErr("mark delivered", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, s.wrapErr("mark delivered", err)
	}
	return n > 0, nil
}

// RecordNotificationFailure bumps the attempt counter and stores the error
func (s *Store) RecordNotificationFailure(ctx context.Context, notificationID string, errMsg string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE share_notifications SET attempts = attempts + 1, last_error = ?
		WHERE notification_id = ? AND delivered = 0
	`, errMsg, notificationID)
	return s.wrapErr("record notification failure", err)
}

// ListUndeliveredSince returns undelivered notifications sent after since, oldest first
func (s *Store) ListUndeliveredSince(ctx context.Context, since time.Time) ([]*domain.ShareNotification, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, share_id, notification_id, recipient_email, sent_at, delivered, delivered_at, attempts, last_error
		FROM share_notifications
		WHERE delivered = 0 AND sent_at > ?
		ORDER BY sent_at ASC, id ASC
	`, toMillis(since))
	if err != nil {
		return nil, s.wrapErr("list undelivered", err)
	}
	defer rows.Close()

	var notifications []*domain.ShareNotification
	for rows.Next() {
		n := &domain.ShareNotification{}
		var sentAt int64
		var deliveredAt sql.NullInt64
		if err := rows.Scan(&n.ID, &n.ShareID, &n.NotificationID, &n.RecipientEmail, &sentAt,
			&n.Delivered, &deliveredAt, &n.Attempts, &n.LastError); err != nil {
			return nil, s.wrapErr("list undelivered", err)
		}
		n.SentAt = fromMillis(sentAt)
		n.DeliveredAt = timeFromNull(deliveredAt)
		notifications = append(notifications, n)
	}

	return notifications, s.wrapErr("list undelivered", rows.Err())
}

// GetNotificationStats aggregates notifications of one share
func (s *Store) GetNotificationStats(ctx context.Context, shareID int64) (*domain.NotificationStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := &domain.NotificationStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN delivered = 1 THEN 1 ELSE 0 END), 0)
		FROM share_notifications
		WHERE share_id = ?
	`, shareID).Scan(&stats.Sent, &stats.Delivered)
	if err != nil {
		return nil, s.wrapErr("notification stats", err)
	}
	return stats, nil
}

// DeleteUndeliveredBefore hard-deletes permanently failed notifications
func (s *Store) DeleteUndeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, "delete undelivered notifications",
		`DELETE FROM share_notifications WHERE delivered = 0 AND sent_at < ?`, cutoff)
}
