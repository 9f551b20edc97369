package service

import (
	"testing"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestSharePolicy_Evaluate(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	p := NewSharePolicy(DefaultPolicyConfig())

	tests := []struct {
		name           string
		share          *domain.Share
		requested      domain.AccessType
		wantGranted    bool
		wantReason     domain.DenialReason
		wantDeactivate bool
	}{
		{
			name:        "missing share",
			share:       nil,
			requested:   domain.AccessView,
			wantReason:  domain.DenialNotFound,
			wantGranted: false,
		},
		{
			name:       "inactive share",
			share:      &domain.Share{Active: false, Permission: domain.PermissionDownload},
			requested:  domain.AccessView,
			wantReason: domain.DenialRevokedOrExhausted,
		},
		{
			name:       "revoked share",
			share:      &domain.Share{Active: false, Permission: domain.PermissionDownload, DeactivationReason: domain.DeactivationRevoked},
			requested:  domain.AccessView,
			wantReason: domain.DenialRevokedOrExhausted,
		},
		{
			name:       "exhausted share stays limit reached",
			share:      &domain.Share{Active: false, Permission: domain.PermissionDownload, AccessCount: 2, MaxAccess: int64Ptr(2), DeactivationReason: domain.DeactivationExhausted},
			requested:  domain.AccessDownload,
			wantReason: domain.DenialAccessLimitReached,
		},
		{
			name:       "expired share stays expired",
			share:      &domain.Share{Active: false, Permission: domain.PermissionDownload, ExpiresAt: timePtr(now.Add(-time.Hour)), DeactivationReason: domain.DeactivationExpired},
			requested:  domain.AccessView,
			wantReason: domain.DenialExpired,
		},
		{
			name:       "exhausted view only share reports limit before permission",
			share:      &domain.Share{Active: false, Permission: domain.PermissionViewOnly, AccessCount: 1, MaxAccess: int64Ptr(1), DeactivationReason: domain.DeactivationExhausted},
			requested:  domain.AccessDownload,
			wantReason: domain.DenialAccessLimitReached,
		},
		{
			name:           "expired share deactivates",
			share:          &domain.Share{Active: true, Permission: domain.PermissionDownload, ExpiresAt: timePtr(now.Add(-time.Second))},
			requested:      domain.AccessView,
			wantReason:     domain.DenialExpired,
			wantDeactivate: true,
		},
		{
			name:           "exhausted share deactivates",
			share:          &domain.Share{Active: true, Permission: domain.PermissionDownload, AccessCount: 3, MaxAccess: int64Ptr(3)},
			requested:      domain.AccessDownload,
			wantReason:     domain.DenialAccessLimitReached,
			wantDeactivate: true,
		},
		{
			name:       "view only refuses download",
			share:      &domain.Share{Active: true, Permission: domain.PermissionViewOnly},
			requested:  domain.AccessDownload,
			wantReason: domain.DenialPermissionDenied,
		},
		{
			name:        "view only allows view",
			share:       &domain.Share{Active: true, Permission: domain.PermissionViewOnly},
			requested:   domain.AccessView,
			wantGranted: true,
		},
		{
			name:        "download share allows download",
			share:       &domain.Share{Active: true, Permission: domain.PermissionDownload, AccessCount: 1, MaxAccess: int64Ptr(2)},
			requested:   domain.AccessDownload,
			wantGranted: true,
		},
		{
			name:           "expiry beats permission",
			share:          &domain.Share{Active: true, Permission: domain.PermissionViewOnly, ExpiresAt: timePtr(now.Add(-time.Minute))},
			requested:      domain.AccessDownload,
			wantReason:     domain.DenialExpired,
			wantDeactivate: true,
		},
		{
			name:           "exhaustion beats permission",
			share:          &domain.Share{Active: true, Permission: domain.PermissionViewOnly, AccessCount: 1, MaxAccess: int64Ptr(1)},
			requested:      domain.AccessDownload,
			wantReason:     domain.DenialAccessLimitReached,
			wantDeactivate: true,
		},
		{
			name:           "expiry beats exhaustion",
			share:          &domain.Share{Active: true, Permission: domain.PermissionDownload, AccessCount: 1, MaxAccess: int64Ptr(1), ExpiresAt: timePtr(now.Add(-time.Minute))},
			requested:      domain.AccessView,
			wantReason:     domain.DenialExpired,
			wantDeactivate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Evaluate(tt.share, tt.requested, now)
			if got.Granted != tt.wantGranted {
				t.Errorf("Granted = %v, want %v", got.Granted, tt.wantGranted)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %v, want %v", got.Reason, tt.wantReason)
			}
			if got.Deactivate != tt.wantDeactivate {
				t.Errorf("Deactivate = %v, want %v", got.Deactivate, tt.wantDeactivate)
			}
		})
	}
}

func TestSharePolicy_EvaluateState_IgnoresPermission(t *testing.T) {
	p := NewSharePolicy(DefaultPolicyConfig())
	share := &domain.Share{Active: true, Permission: domain.PermissionViewOnly}

	if d := p.EvaluateState(share, time.Now()); !d.Granted {
		t.Errorf("EvaluateState() = %+v, want granted", d)
	}
}

func TestSharePolicy_ValidateNew(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	p := NewSharePolicy(PolicyConfig{MaxAccessCeiling: 100, MaxLifetime: 30 * 24 * time.Hour, DefaultLifetime: 7 * 24 * time.Hour})

	share := &domain.Share{FileID: 1, OwnerID: 1, Permission: domain.PermissionDownload}
	if err := p.ValidateNew(share, now); err != nil {
		t.Fatalf("ValidateNew() = %v", err)
	}
	if share.ExpiresAt == nil || !share.ExpiresAt.Equal(now.Add(7*24*time.Hour)) {
		t.Errorf("default lifetime not applied: %v", share.ExpiresAt)
	}

	tooMany := &domain.Share{FileID: 1, OwnerID: 1, Permission: domain.PermissionDownload, MaxAccess: int64Ptr(101)}
	if err := p.ValidateNew(tooMany, now); !domain.IsValidation(err) {
		t.Errorf("ValidateNew(max_access=101) = %v, want validation error", err)
	}

	tooLong := &domain.Share{FileID: 1, OwnerID: 1, Permission: domain.PermissionDownload, ExpiresAt: timePtr(now.Add(60 * 24 * time.Hour))}
	if err := p.ValidateNew(tooLong, now); !domain.IsValidation(err) {
		t.Errorf("ValidateNew(expires in 60d) = %v, want validation error", err)
	}

	past := &domain.Share{FileID: 1, OwnerID: 1, Permission: domain.PermissionDownload, ExpiresAt: timePtr(now.Add(-time.Second))}
	if err := p.ValidateNew(past, now); err != nil {
		t.Errorf("ValidateNew(past expiry) = %v, want nil", err)
	}
}
