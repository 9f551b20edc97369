package sqlite

import (
	"context"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// GetShareCounts returns total and active share counts
func (s *Store) GetShareCounts(ctx context.Context) (*domain.ShareCounts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counts := &domain.ShareCounts{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0)
		FROM shares
	`).Scan(&counts.Total, &counts.Active)
	if err != nil {
		return nil, s.wrapErr("share counts", err)
	}
	return counts, nil
}

// GetAccessCountsSince returns committed accesses since the given time
func (s *Store) GetAccessCountsSince(ctx context.Context, since time.Time) (*domain.AccessCounts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counts := &domain.AccessCounts{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN access_type = 'VIEW' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN access_type = 'DOWNLOAD' THEN 1 ELSE 0 END), 0)
		FROM share_accesses
		WHERE accessed_at >= ?
	`, toMillis(since)).Scan(&counts.Views, &counts.Downloads)
	if err != nil {
		return nil, s.wrapErr("access counts", err)
	}
	return counts, nil
}
