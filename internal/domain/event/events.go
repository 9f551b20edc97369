package event

import (
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// Event names
const (
	NameShareCreated       = "share.created"
	NameShareAccessed      = "share.accessed"
	NameShareAccessDenied  = "share.access_denied"
	NameShareDeactivated   = "share.deactivated"
	NameShareRevoked       = "share.revoked"
	NameNotificationSent   = "notification.sent"
	NameNotificationFailed = "notification.failed"
	NameSweepCompleted     = "maintenance.sweep_completed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// ShareCreated is raised when an owner creates a share link
type ShareCreated struct {
	BaseEvent
	ShareID    int64
	FileID     int64
	OwnerID    int64
	Permission domain.Permission
	ExpiresAt  *time.Time
	MaxAccess  *int64
}

// EventName returns the event name
func (e ShareCreated) EventName() string {
	return NameShareCreated
}

// NewShareCreated creates a new ShareCreated event
func NewShareCreated(share *domain.Share, at time.Time) ShareCreated {
	return ShareCreated{
		BaseEvent:  BaseEvent{Timestamp: at},
		ShareID:    share.ID,
		FileID:     share.FileID,
		OwnerID:    share.OwnerID,
		Permission: share.Permission,
		ExpiresAt:  share.ExpiresAt,
		MaxAccess:  share.MaxAccess,
	}
}

// ShareAccessed is raised when an access has been committed
type ShareAccessed struct {
	BaseEvent
	ShareID     int64
	FileID      int64
	AccessType  domain.AccessType
	ClientIP    string
	AccessCount int64
	Exhausted   bool
}

// EventName returns the event name
func (e ShareAccessed) EventName() string {
	return NameShareAccessed
}

// NewShareAccessed creates a new ShareAccessed event from the post-update share
func NewShareAccessed(share *domain.Share, accessType domain.AccessType, clientIP string, at time.Time) ShareAccessed {
	return ShareAccessed{
		BaseEvent:   BaseEvent{Timestamp: at},
		ShareID:     share.ID,
		FileID:      share.FileID,
		AccessType:  accessType,
		ClientIP:    clientIP,
		AccessCount: share.AccessCount,
		Exhausted:   !share.Active && share.DeactivationReason == domain.DeactivationExhausted,
	}
}

// ShareAccessDenied is raised when an access attempt is refused
type ShareAccessDenied struct {
	BaseEvent
	ShareID    int64 // 0 when the token matched no share
	TokenHint  string
	AccessType domain.AccessType
	Reason     domain.DenialReason
	ClientIP   string
}

// EventName returns the event name
func (e ShareAccessDenied) EventName() string {
	return NameShareAccessDenied
}

// NewShareAccessDenied creates a new ShareAccessDenied event
func NewShareAccessDenied(shareID int64, tokenHint string, accessType domain.AccessType, reason domain.DenialReason, clientIP string, at time.Time) ShareAccessDenied {
	return ShareAccessDenied{
		BaseEvent:  BaseEvent{Timestamp: at},
		ShareID:    shareID,
		TokenHint:  tokenHint,
		AccessType: accessType,
		Reason:     reason,
		ClientIP:   clientIP,
	}
}

// ShareDeactivated is raised when a share flips inactive on expiry or exhaustion
type ShareDeactivated struct {
	BaseEvent
	ShareID int64
	Reason  domain.DeactivationReason
}

// EventName returns the event name
func (e ShareDeactivated) EventName() string {
	return NameShareDeactivated
}

// NewShareDeactivated creates a new ShareDeactivated event
func NewShareDeactivated(shareID int64, reason domain.DeactivationReason, at time.Time) ShareDeactivated {
	return ShareDeactivated{
		BaseEvent: BaseEvent{Timestamp: at},
		ShareID:   shareID,
		Reason:    reason,
	}
}

// ShareRevoked is raised when the owner revokes a share
type ShareRevoked struct {
	BaseEvent
	ShareID int64
	OwnerID int64
}

// EventName returns the event name
func (e ShareRevoked) EventName() string {
	return NameShareRevoked
}

// NewShareRevoked creates a new ShareRevoked event
func NewShareRevoked(shareID, ownerID int64, at time.Time) ShareRevoked {
	return ShareRevoked{
		BaseEvent: BaseEvent{Timestamp: at},
		ShareID:   shareID,
		OwnerID:   ownerID,
	}
}

// NotificationSent is raised when a notification email was handed to the mail server
type NotificationSent struct {
	BaseEvent
	ShareID        int64
	NotificationID string
	Attempt        int
}

// EventName returns the event name
func (e NotificationSent) EventName() string {
	return NameNotificationSent
}

// NewNotificationSent creates a new NotificationSent event
func NewNotificationSent(shareID int64, notificationID string, attempt int, at time.Time) NotificationSent {
	return NotificationSent{
		BaseEvent:      BaseEvent{Timestamp: at},
		ShareID:        shareID,
		NotificationID: notificationID,
		Attempt:        attempt,
	}
}

// NotificationFailed is raised when sending a notification email failed
type NotificationFailed struct {
	BaseEvent
	ShareID        int64
	NotificationID string
	Attempt        int
	Error          string
}

// EventName returns the event name
func (e NotificationFailed) EventName() string {
	return NameNotificationFailed
}

// NewNotificationFailed creates a new NotificationFailed event
func NewNotificationFailed(shareID int64, notificationID string, attempt int, err string, at time.Time) NotificationFailed {
	return NotificationFailed{
		BaseEvent:      BaseEvent{Timestamp: at},
		ShareID:        shareID,
		NotificationID: notificationID,
		Attempt:        attempt,
		Error:          err,
	}
}

// SweepCompleted is raised when a maintenance job finishes
type SweepCompleted struct {
	BaseEvent
	Job      string // "sweep_expired", "sweep_exhausted", "cleanup", "notification_retry"
	Affected int64
	Duration time.Duration
}

// EventName returns the event name
func (e SweepCompleted) EventName() string {
	return NameSweepCompleted
}

// NewSweepCompleted creates a new SweepCompleted event
func NewSweepCompleted(job string, affected int64, duration time.Duration, at time.Time) SweepCompleted {
	return SweepCompleted{
		BaseEvent: BaseEvent{Timestamp: at},
		Job:       job,
		Affected:  affected,
		Duration:  duration,
	}
}
