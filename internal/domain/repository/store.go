package repository

import "context"

// Store combines all repository interfaces
type Store interface {
	ShareRepository
	AccessRepository
	NotificationRepository
	StatsRepository

	// Close closes the database connection
	Close() error

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}
