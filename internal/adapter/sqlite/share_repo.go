package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

const shareColumns = `id, token, owner_id, file_id, permission, created_at, expires_at,
	active, access_count, max_access, deactivated_at, deactivation_reason`

func scanShare(row rowScanner) (*domain.Share, error) {
	share := &domain.Share{}
	var (
		permission, reason     string
		createdAt              int64
		expiresAt, deactivated sql.NullInt64
		maxAccess              sql.NullInt64
	)

	err := row.Scan(
		&share.ID, &share.Token, &share.OwnerID, &share.FileID, &permission, &createdAt, &expiresAt,
		&share.Active, &share.AccessCount, &maxAccess, &deactivated, &reason,
	)
	if err != nil {
		return nil, err
	}

	share.Permission = domain.Permission(permission)
	share.CreatedAt = fromMillis(createdAt)
	share.ExpiresAt = timeFromNull(expiresAt)
	share.MaxAccess = int64FromNull(maxAccess)
	share.DeactivatedAt = timeFromNull(deactivated)
	share.DeactivationReason = domain.DeactivationReason(reason)

	return share, nil
}

// CreateShare inserts a new share
func (s *Store) CreateShare(ctx context.Context, share *domain.Share) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO shares (token, owner_id, file_id, permission, created_at, expires_at,
			active, access_count, max_access, deactivated_at, deactivation_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	// Stored timestamps have millisecond precision; keep the caller's copy in step.
	share.CreatedAt = share.CreatedAt.Truncate(time.Millisecond)
	if share.ExpiresAt != nil {
		expiresAt := share.ExpiresAt.Truncate(time.Millisecond)
		share.ExpiresAt = &expiresAt
	}
	if share.DeactivatedAt != nil {
		deactivatedAt := share.DeactivatedAt.Truncate(time.Millisecond)
		share.DeactivatedAt = &deactivatedAt
	}

	result, err := s.db.ExecContext(ctx, query,
		share.Token, share.OwnerID, share.FileID, string(share.Permission),
		toMillis(share.CreatedAt), nullMillis(share.ExpiresAt),
		share.Active, share.AccessCount, nullInt64(share.MaxAccess),
		nullMillis(share.DeactivatedAt), string(share.DeactivationReason),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrAlreadyExists
		}
		return s.wrapErr("create share", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.wrapErr("create share", err)
	}
	share.ID = id

	return nil
}

// GetShareByID retrieves a share by ID
func (s *Store) GetShareByID(ctx context.Context, id int64) (*domain.Share, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	share, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrShareNotFound
	}
	if err != nil {
		return nil, s.wrapErr("get share", err)
	}
	return share, nil
}

// GetShareByToken retrieves a share by its token
func (s *Store) GetShareByToken(ctx context.Context, token string) (*domain.Share, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	share, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrShareNotFound
	}
	if err != nil {
		return nil, s.wrapErr("get share by token", err)
	}
	return share, nil
}

// TokenExists reports whether any share already uses the token
func (s *Store) TokenExists(ctx context.Context, token string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM shares WHERE token = ?)`, token).Scan(&exists)
	if err != nil {
		return false, s.wrapErr("check token", err)
	}
	return exists, nil
}

// ListSharesByOwner returns all shares created by the owner, newest first
func (s *Store) ListSharesByOwner(ctx context.Context, ownerID int64) ([]*domain.Share, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, s.wrapErr("list shares", err)
	}
	defer rows.Close()

	var shares []*domain.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, s.wrapErr("list shares", err)
		}
		shares = append(shares, share)
	}

	return shares, s.wrapErr("list shares", rows.Err())
}

// DeactivateShare flips an active share inactive
func (s *Store) DeactivateShare(ctx context.Context, id int64, reason domain.DeactivationReason, at time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE shares SET active = 0, deactivated_at = ?, deactivation_reason = ?
		WHERE id = ? AND active = 1
	`, toMillis(at), string(reason), id)
	if err != nil {
		return false, s.wrapErr("deactivate share", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, s.wrapErr("deactivate share", err)
	}
	return n > 0, nil
}

// RecordAccess consumes one unit of the share's access budget and appends
// the access row in a single transaction. The guarded UPDATE runs first so
// the transaction takes the write lock before reading anything; concurrent
// callers serialize on that lock and the guard re-checks the budget.
func (s *Store) RecordAccess(ctx context.Context, access *domain.ShareAccess) (*domain.Share, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.wrapErr("begin record access", err)
	}
	defer tx.Rollback()

	now := toMillis(access.AccessedAt)
	result, err := tx.ExecContext(ctx, `
		UPDATE shares SET
			access_count = access_count + 1,
			active = CASE WHEN max_access IS NOT NULL AND access_count + 1 >= max_access THEN 0 ELSE active END,
			deactivated_at = CASE WHEN max_access IS NOT NULL AND access_count + 1 >= max_access THEN ? ELSE deactivated_at END,
			deactivation_reason = CASE WHEN max_access IS NOT NULL AND access_count + 1 >= max_access THEN ? ELSE deactivation_reason END
		WHERE id = ?
			AND active = 1
			AND (max_access IS NULL OR access_count < max_access)
			AND (expires_at IS NULL OR expires_at >= ?)
	`, now, string(domain.DeactivationExhausted), access.ShareID, now)
	if err != nil {
		return nil, s.wrapErr("record access", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, s.wrapErr("record access", err)
	}
	if n == 0 {
		return nil, s.refusalReason(ctx, tx, access.ShareID, access.AccessedAt)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO share_accesses (share_id, accessor_ip, user_agent, accessed_at, access_type)
		VALUES (?, ?, ?, ?, ?)
	`, access.ShareID, access.AccessorIP, access.UserAgent, now, string(access.AccessType))
	if err != nil {
		return nil, s.wrapErr("insert access", err)
	}
	if access.ID, err = res.LastInsertId(); err != nil {
		return nil, s.wrapErr("insert access", err)
	}

	share, err := scanShare(tx.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, access.ShareID))
	if err != nil {
		return nil, s.wrapErr("reload share", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, s.wrapErr("commit record access", err)
	}

	return share, nil
}

// refusalReason explains why the guarded update matched no row
func (s *Store) refusalReason(ctx context.Context, tx *sql.Tx, shareID int64, at time.Time) error {
	share, err := scanShare(tx.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, shareID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrShareNotFound
	}
	if err != nil {
		return s.wrapErr("reload share", err)
	}

	if !share.Active {
		switch share.DeactivationReason {
		case domain.DeactivationExhausted:
			return domain.ErrAccessLimitReached
		case domain.DeactivationExpired:
			return domain.ErrShareExpired
		default:
			return domain.ErrShareRevoked
		}
	}
	if share.IsExpiredAt(at) {
		return domain.ErrShareExpired
	}
	if share.IsExhausted() {
		return domain.ErrAccessLimitReached
	}
	return domain.ErrConflict
}

// SweepExpired deactivates active shares whose expiry lies before now
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE shares SET active = 0, deactivated_at = ?, deactivation_reason = ?
		WHERE active = 1 AND expires_at IS NOT NULL AND expires_at < ?
	`, toMillis(now), string(domain.DeactivationExpired), toMillis(now))
	if err != nil {
		return 0, s.wrapErr("sweep expired", err)
	}
	n, err := result.RowsAffected()
	return n, s.wrapErr("sweep expired", err)
}

// SweepExhausted deactivates active shares whose budget is used up
func (s *Store) SweepExhausted(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE shares SET active = 0, deactivated_at = ?, deactivation_reason = ?
		WHERE active = 1 AND max_access IS NOT NULL AND access_count >= max_access
	`, toMillis(now), string(domain.DeactivationExhausted))
	if err != nil {
		return 0, s.wrapErr("sweep exhausted", err)
	}
	n, err := result.RowsAffected()
	return n, s.wrapErr("sweep exhausted", err)
}
