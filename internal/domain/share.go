package domain

import (
	"fmt"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain/vo"
)

// Permission is the access level a share grants
type Permission string

const (
	// PermissionViewOnly allows previewing metadata without content transfer
	PermissionViewOnly Permission = "VIEW_ONLY"
	// PermissionDownload allows full content transfer
	PermissionDownload Permission = "DOWNLOAD"
)

// ParsePermission parses a permission string
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionViewOnly, PermissionDownload:
		return Permission(s), nil
	default:
		return "", NewValidationError("permission", fmt.Sprintf("unknown permission %q", s))
	}
}

// Allows returns true if the permission covers the requested access type
func (p Permission) Allows(t AccessType) bool {
	if t == AccessDownload {
		return p == PermissionDownload
	}
	return true
}

// DeactivationReason records why a share stopped being active
type DeactivationReason string

const (
	DeactivationNone      DeactivationReason = ""
	DeactivationRevoked   DeactivationReason = "REVOKED"
	DeactivationExpired   DeactivationReason = "EXPIRED"
	DeactivationExhausted DeactivationReason = "EXHAUSTED"
)

// Share represents one link granting access to exactly one file
type Share struct {
	ID                 int64
	Token              string
	OwnerID            int64
	FileID             int64
	Permission         Permission
	CreatedAt          time.Time
	ExpiresAt          *time.Time
	Active             bool
	AccessCount        int64
	MaxAccess          *int64 // nil means unlimited
	DeactivatedAt      *time.Time
	DeactivationReason DeactivationReason
}

// GetToken returns the token as a value object
func (s *Share) GetToken() vo.ShareToken {
	if s.Token == "" {
		return vo.EmptyShareToken()
	}
	st, _ := vo.NewShareToken(s.Token)
	return st
}

// IsExpiredAt returns true if the share has an expiry that lies before now
func (s *Share) IsExpiredAt(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// IsExhausted returns true if the access budget is used up
func (s *Share) IsExhausted() bool {
	if s.MaxAccess == nil {
		return false
	}
	return s.AccessCount >= *s.MaxAccess
}

// IsUsableAt returns true if the share is active, unexpired and within budget
func (s *Share) IsUsableAt(now time.Time) bool {
	return s.Active && !s.IsExpiredAt(now) && !s.IsExhausted()
}

// IsOwnedBy returns true if userID created the share
func (s *Share) IsOwnedBy(userID int64) bool {
	return s.OwnerID == userID
}

// RemainingAccesses returns the access budget left.
// The second value is false when the share is unlimited.
func (s *Share) RemainingAccesses() (int64, bool) {
	if s.MaxAccess == nil {
		return 0, false
	}
	remaining := *s.MaxAccess - s.AccessCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Deactivate marks the share inactive. Returns false if it already was.
func (s *Share) Deactivate(reason DeactivationReason, at time.Time) bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.DeactivationReason = reason
	s.DeactivatedAt = &at
	return true
}

// Revoke marks the share as revoked by its owner
func (s *Share) Revoke(at time.Time) bool {
	return s.Deactivate(DeactivationRevoked, at)
}

// ValidateNew checks the fields supplied at creation time
func (s *Share) ValidateNew(now time.Time) error {
	if s.FileID <= 0 {
		return NewValidationError("file_id", "must be positive")
	}
	if s.OwnerID <= 0 {
		return NewValidationError("owner_id", "must be positive")
	}
	if _, err := ParsePermission(string(s.Permission)); err != nil {
		return err
	}
	if s.MaxAccess != nil && *s.MaxAccess <= 0 {
		return NewValidationError("max_access", "must be a positive integer")
	}
	return nil
}
