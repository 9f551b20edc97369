package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// RecordDenial appends a refused access attempt
func (s *Store) RecordDenial(ctx context.Context, denial *domain.ShareDenial) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO share_denials (share_id, token_hint, accessor_ip, user_agent, attempted_at, access_type, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullInt64(denial.ShareID), denial.TokenHint, denial.AccessorIP, denial.UserAgent,
		toMillis(denial.AttemptedAt), string(denial.AccessType), string(denial.Reason))
	if err != nil {
		return s.wrapErr("record denial", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.wrapErr("record denial", err)
	}
	denial.ID = id

	return nil
}

// ListAccesses returns the most recent accesses of a share
func (s *Store) ListAccesses(ctx context.Context, shareID int64, limit int) ([]*domain.ShareAccess, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, share_id, accessor_ip, user_agent, accessed_at, access_type
		FROM share_accesses
		WHERE share_id = ?
		ORDER BY accessed_at DESC, id DESC
		LIMIT ?
	`, shareID, limit)
	if err != nil {
		return nil, s.wrapErr("list accesses", err)
	}
	defer rows.Close()

	var accesses []*domain.ShareAccess
	for rows.Next() {
		a := &domain.ShareAccess{}
		var accessedAt int64
		var accessType string
		if err := rows.Scan(&a.ID, &a.ShareID, &a.AccessorIP, &a.UserAgent, &accessedAt, &accessType); err != nil {
			return nil, s.wrapErr("list accesses", err)
		}
		a.AccessedAt = fromMillis(accessedAt)
		a.AccessType = domain.AccessType(accessType)
		accesses = append(accesses, a)
	}

	return accesses, s.wrapErr("list accesses", rows.Err())
}

// GetShareAccessStats aggregates the audit trail of one share
func (s *Store) GetShareAccessStats(ctx context.Context, shareID int64) (*domain.ShareAccessStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := &domain.ShareAccessStats{}
	var lastAccessed sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN access_type = 'VIEW' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN access_type = 'DOWNLOAD' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT accessor_ip),
			MAX(accessed_at)
		FROM share_accesses
		WHERE share_id = ?
	`, shareID).Scan(&stats.Accesses.Views, &stats.Accesses.Downloads, &stats.UniqueIPs, &lastAccessed)
	if err != nil {
		return nil, s.wrapErr("access stats", err)
	}
	stats.LastAccessedAt = timeFromNull(lastAccessed)

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM share_denials WHERE share_id = ?`, shareID).Scan(&stats.Denials)
	if err != nil {
		return nil, s.wrapErr("denial stats", err)
	}

	return stats, nil
}

// GetIPActivity groups accesses and denials since the given time by IP
func (s *Store) GetIPActivity(ctx context.Context, since time.Time, threshold int64, countDenials bool) ([]domain.IPActivity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cutoff := toMillis(since)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip, SUM(accesses), SUM(denials), COUNT(DISTINCT share_id)
		FROM (
			SELECT accessor_ip AS ip, 1 AS accesses, 0 AS denials, share_id
			FROM share_accesses WHERE accessed_at >= ?
			UNION ALL
			SELECT accessor_ip AS ip, 0 AS accesses, 1 AS denials, share_id
			FROM share_denials WHERE attempted_at >= ?
		)
		GROUP BY ip
		HAVING SUM(accesses) + (CASE WHEN ? THEN SUM(denials) ELSE 0 END) >= ?
		ORDER BY SUM(accesses) DESC, SUM(denials) DESC, ip ASC
	`, cutoff, cutoff, countDenials, threshold)
	if err != nil {
		return nil, s.wrapErr("ip activity", err)
	}
	defer rows.Close()

	var activity []domain.IPActivity
	for rows.Next() {
		var a domain.IPActivity
		if err := rows.Scan(&a.IP, &a.Accesses, &a.Denials, &a.Shares); err != nil {
			return nil, s.wrapErr("ip activity", err)
		}
		activity = append(activity, a)
	}

	return activity, s.wrapErr("ip activity", rows.Err())
}

// DeleteAccessesBefore hard-deletes access rows older than cutoff
func (s *Store) DeleteAccessesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, "delete accesses", `DELETE FROM share_accesses WHERE accessed_at < ?`, cutoff)
}

// DeleteDenialsBefore hard-deletes denial rows older than cutoff
func (s *Store) DeleteDenialsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteBefore(ctx, "delete denials", `DELETE FROM share_denials WHERE attempted_at < ?`, cutoff)
}

func (s *Store) deleteBefore(ctx context.Context, op, query string, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, query, toMillis(cutoff))
	if err != nil {
		return 0, s.wrapErr(op, err)
	}
	n, err := result.RowsAffected()
	return n, s.wrapErr(op, err)
}
