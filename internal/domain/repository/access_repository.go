package repository

import (
	"context"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// AccessRepository defines the interface for the access and denial audit trail
type AccessRepository interface {
	// RecordDenial appends a refused access attempt
	RecordDenial(ctx context.Context, denial *domain.ShareDenial) error

	// ListAccesses returns the most recent accesses of a share
	ListAccesses(ctx context.Context, shareID int64, limit int) ([]*domain.ShareAccess, error)

	// GetShareAccessStats aggregates the audit trail of one share
	GetShareAccessStats(ctx context.Context, shareID int64) (*domain.ShareAccessStats, error)

	// GetIPActivity groups accesses and denials since the given time by IP
	// and returns IPs with at least threshold accesses. Denials are always
	// reported and only count towards the threshold when countDenials is set.
	GetIPActivity(ctx context.Context, since time.Time, threshold int64, countDenials bool) ([]domain.IPActivity, error)

	// DeleteAccessesBefore hard-deletes access rows older than cutoff
	DeleteAccessesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteDenialsBefore hard-deletes denial rows older than cutoff
	DeleteDenialsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
