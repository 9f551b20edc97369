package repository

import (
	"context"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// ShareRepository defines the interface for share persistence operations
type ShareRepository interface {
	// CreateShare inserts a new share and sets its ID
	// Returns domain.ErrAlreadyExists if the token is taken
	CreateShare(ctx context.Context, share *domain.Share) error

	// GetShareByID retrieves a share by ID
	// Returns domain.ErrShareNotFound if absent
	GetShareByID(ctx context.Context, id int64) (*domain.Share, error)

	// GetShareByToken retrieves a share by its token
	// Returns domain.ErrShareNotFound if absent
	GetShareByToken(ctx context.Context, token string) (*domain.Share, error)

	// TokenExists reports whether any share already uses the token
	TokenExists(ctx context.Context, token string) (bool, error)

	// ListSharesByOwner returns all shares created by the owner, newest first
	ListSharesByOwner(ctx context.Context, ownerID int64) ([]*domain.Share, error)

	// DeactivateShare flips an active share inactive
	// Returns false if the share was already inactive
	DeactivateShare(ctx context.Context, id int64, reason domain.DeactivationReason, at time.Time) (bool, error)

	// RecordAccess atomically consumes one unit of the access budget,
	// deactivates the share when the budget hits zero and appends the
	// access row. It refuses shares that are no longer usable at access.AccessedAt.
	RecordAccess(ctx context.Context, access *domain.ShareAccess) (*domain.Share, error)

	// SweepExpired deactivates active shares whose expiry lies before now
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// SweepExhausted deactivates active shares whose budget is used up
	SweepExhausted(ctx context.Context, now time.Time) (int64, error)
}
