package port

import (
	"github.com/vertextoedge/sharelink/internal/domain/repository"
)

// ShareRepository is an alias to domain repository interface
type ShareRepository = repository.ShareRepository

// AccessRepository is an alias to domain repository interface
type AccessRepository = repository.AccessRepository

// NotificationRepository is an alias to domain repository interface
type NotificationRepository = repository.NotificationRepository

// StatsRepository is an alias to domain repository interface
type StatsRepository = repository.StatsRepository

// Store is an alias to domain repository interface
type Store = repository.Store
