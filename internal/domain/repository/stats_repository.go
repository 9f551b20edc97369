package repository

import (
	"context"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// StatsRepository defines the interface for global usage statistics
type StatsRepository interface {
	// GetShareCounts returns total and active share counts
	GetShareCounts(ctx context.Context) (*domain.ShareCounts, error)

	// GetAccessCountsSince returns committed accesses since the given time
	GetAccessCountsSince(ctx context.Context, since time.Time) (*domain.AccessCounts, error)
}
