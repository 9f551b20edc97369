package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		message string
		want    string
	}{
		{
			name:    "with field",
			field:   "max_access",
			message: "must be a positive integer",
			want:    "invalid max_access: must be a positive integer",
		},
		{
			name:    "without field",
			field:   "",
			message: "empty body",
			want:    "invalid input: empty body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := NewValidationError(tt.field, tt.message)
			if got := ve.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError_MatchesInvalidInput(t *testing.T) {
	err := fmt.Errorf("create share: %w", NewValidationError("permission", "unknown"))

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("wrapped ValidationError should match ErrInvalidInput")
	}
	if !IsValidation(err) {
		t.Error("IsValidation() = false, want true")
	}
	if IsValidation(errors.New("other")) {
		t.Error("IsValidation() = true for unrelated error")
	}
}

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with error",
			err:  errors.New("database is locked"),
			want: "transient failure: database is locked",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("timeout"), time.Second),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("record access: %w", NewRetryableError(errors.New("timeout"), time.Second)),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	d, ok := GetRetryAfter(fmt.Errorf("wrap: %w", NewRetryableError(nil, 250*time.Millisecond)))
	if !ok {
		t.Fatal("GetRetryAfter() ok = false, want true")
	}
	if d != 250*time.Millisecond {
		t.Errorf("GetRetryAfter() = %v, want %v", d, 250*time.Millisecond)
	}

	if _, ok := GetRetryAfter(errors.New("plain")); ok {
		t.Error("GetRetryAfter() ok = true for plain error")
	}
}

func TestDenialReason_Err(t *testing.T) {
	tests := []struct {
		reason DenialReason
		want   error
	}{
		{DenialNone, nil},
		{DenialNotFound, ErrShareNotFound},
		{DenialRevokedOrExhausted, ErrShareRevoked},
		{DenialExpired, ErrShareExpired},
		{DenialAccessLimitReached, ErrAccessLimitReached},
		{DenialPermissionDenied, ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.Err(); !errors.Is(got, tt.want) || (tt.want == nil && got != nil) {
				t.Errorf("Err() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnavailableShare(t *testing.T) {
	for _, err := range []error{ErrShareNotFound, ErrShareRevoked, ErrShareExpired, ErrAccessLimitReached} {
		if !IsUnavailableShare(fmt.Errorf("wrap: %w", err)) {
			t.Errorf("IsUnavailableShare(%v) = false, want true", err)
		}
	}
	if IsUnavailableShare(ErrPermissionDenied) {
		t.Error("permission denial must stay distinguishable")
	}
}
