package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestShare_IsUsableAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		share Share
		want  bool
	}{
		{
			name:  "active unlimited",
			share: Share{Active: true},
			want:  true,
		},
		{
			name:  "inactive",
			share: Share{Active: false},
			want:  false,
		},
		{
			name:  "expired",
			share: Share{Active: true, ExpiresAt: timePtr(now.Add(-time.Second))},
			want:  false,
		},
		{
			name:  "expires in future",
			share: Share{Active: true, ExpiresAt: timePtr(now.Add(time.Hour))},
			want:  true,
		},
		{
			name:  "budget left",
			share: Share{Active: true, AccessCount: 1, MaxAccess: int64Ptr(2)},
			want:  true,
		},
		{
			name:  "budget exhausted",
			share: Share{Active: true, AccessCount: 2, MaxAccess: int64Ptr(2)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.share.IsUsableAt(now); got != tt.want {
				t.Errorf("IsUsableAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShare_RemainingAccesses(t *testing.T) {
	s := Share{AccessCount: 3}
	if _, limited := s.RemainingAccesses(); limited {
		t.Error("unlimited share reported a limit")
	}

	s.MaxAccess = int64Ptr(5)
	remaining, limited := s.RemainingAccesses()
	if !limited || remaining != 2 {
		t.Errorf("RemainingAccesses() = %d, %v, want 2, true", remaining, limited)
	}

	s.AccessCount = 7
	if remaining, _ := s.RemainingAccesses(); remaining != 0 {
		t.Errorf("RemainingAccesses() = %d, want 0", remaining)
	}
}

func TestShare_Deactivate(t *testing.T) {
	now := time.Now()
	s := Share{Active: true}

	if !s.Deactivate(DeactivationExpired, now) {
		t.Fatal("first Deactivate() = false, want true")
	}
	if s.Active {
		t.Error("share still active")
	}
	if s.DeactivationReason != DeactivationExpired {
		t.Errorf("DeactivationReason = %v, want %v", s.DeactivationReason, DeactivationExpired)
	}

	if s.Revoke(now.Add(time.Minute)) {
		t.Error("Revoke() on inactive share = true, want false")
	}
	if s.DeactivationReason != DeactivationExpired {
		t.Error("second deactivation overwrote the original reason")
	}
}

func TestShare_ValidateNew(t *testing.T) {
	now := time.Now()
	valid := Share{FileID: 1, OwnerID: 2, Permission: PermissionDownload}

	if err := valid.ValidateNew(now); err != nil {
		t.Fatalf("ValidateNew() = %v, want nil", err)
	}

	bad := []Share{
		{FileID: 0, OwnerID: 2, Permission: PermissionDownload},
		{FileID: 1, OwnerID: 0, Permission: PermissionDownload},
		{FileID: 1, OwnerID: 2, Permission: "EDIT"},
		{FileID: 1, OwnerID: 2, Permission: PermissionViewOnly, MaxAccess: int64Ptr(0)},
		{FileID: 1, OwnerID: 2, Permission: PermissionViewOnly, MaxAccess: int64Ptr(-3)},
	}
	for i, s := range bad {
		if err := s.ValidateNew(now); !IsValidation(err) {
			t.Errorf("case %d: ValidateNew() = %v, want validation error", i, err)
		}
	}
}

func TestPermission_Allows(t *testing.T) {
	if !PermissionViewOnly.Allows(AccessView) {
		t.Error("VIEW_ONLY should allow VIEW")
	}
	if PermissionViewOnly.Allows(AccessDownload) {
		t.Error("VIEW_ONLY must not allow DOWNLOAD")
	}
	if !PermissionDownload.Allows(AccessDownload) || !PermissionDownload.Allows(AccessView) {
		t.Error("DOWNLOAD should allow both access types")
	}
}

func TestShareNotification_IsRetryableAt(t *testing.T) {
	now := time.Now()
	n := ShareNotification{SentAt: now.Add(-time.Hour)}

	if !n.IsRetryableAt(now, 2*time.Hour) {
		t.Error("recent undelivered notification should be retryable")
	}
	if n.IsRetryableAt(now, 30*time.Minute) {
		t.Error("notification older than the window should not be retryable")
	}

	n.MarkDelivered(now)
	if n.IsRetryableAt(now, 2*time.Hour) {
		t.Error("delivered notification should not be retryable")
	}
}
