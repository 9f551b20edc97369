package domain

import (
	"fmt"
	"time"
)

// AccessType is the kind of access requested on a share
type AccessType string

const (
	AccessView     AccessType = "VIEW"
	AccessDownload AccessType = "DOWNLOAD"
)

// ParseAccessType parses an access type string
func ParseAccessType(s string) (AccessType, error) {
	switch AccessType(s) {
	case AccessView, AccessDownload:
		return AccessType(s), nil
	default:
		return "", NewValidationError("access_type", fmt.Sprintf("unknown access type %q", s))
	}
}

// DenialReason explains why an access attempt was refused
type DenialReason string

const (
	DenialNone               DenialReason = ""
	DenialNotFound           DenialReason = "NOT_FOUND"
	DenialRevokedOrExhausted DenialReason = "REVOKED_OR_EXHAUSTED"
	DenialExpired            DenialReason = "EXPIRED"
	DenialAccessLimitReached DenialReason = "ACCESS_LIMIT_REACHED"
	DenialPermissionDenied   DenialReason = "PERMISSION_DENIED"
)

// Err maps a denial reason to its sentinel error
func (r DenialReason) Err() error {
	switch r {
	case DenialNone:
		return nil
	case DenialNotFound:
		return ErrShareNotFound
	case DenialRevokedOrExhausted:
		return ErrShareRevoked
	case DenialExpired:
		return ErrShareExpired
	case DenialAccessLimitReached:
		return ErrAccessLimitReached
	case DenialPermissionDenied:
		return ErrPermissionDenied
	default:
		return fmt.Errorf("unknown denial reason %q", string(r))
	}
}

// ShareAccess is one committed access to a share. Rows are append-only.
type ShareAccess struct {
	ID         int64
	ShareID    int64
	AccessorIP string
	UserAgent  string
	AccessedAt time.Time
	AccessType AccessType
}

// ShareDenial is one refused access attempt, kept for security monitoring
type ShareDenial struct {
	ID          int64
	ShareID     *int64 // nil when the token matched no share
	TokenHint   string
	AccessorIP  string
	UserAgent   string
	AttemptedAt time.Time
	AccessType  AccessType
	Reason      DenialReason
}
