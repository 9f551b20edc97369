package vo

import (
	"errors"
	"testing"
)

func TestNewShareToken(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "0123456789abcdef0123456789abcdef", nil},
		{"valid with spaces", "  0123456789abcdef0123456789abcdef ", nil},
		{"empty", "", ErrEmptyToken},
		{"blank", "   ", ErrEmptyToken},
		{"too short", "abc123", ErrInvalidToken},
		{"uppercase", "0123456789ABCDEF0123456789ABCDEF", ErrInvalidToken},
		{"path traversal", "../../../../etc/passwd0000000000", ErrInvalidToken},
		{"uuid with hyphens", "01234567-89ab-cdef-0123-456789abcdef", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewShareToken(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewShareToken() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && st.String() == "" {
				t.Error("valid token reported empty")
			}
		})
	}
}

func TestShareToken_Masked(t *testing.T) {
	st, err := NewShareToken("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewShareToken() error = %v", err)
	}
	if got, want := st.Masked(), "0123****cdef"; got != want {
		t.Errorf("Masked() = %v, want %v", got, want)
	}
	if got := MaskToken("short"); got != "*****" {
		t.Errorf("MaskToken(short) = %v, want *****", got)
	}
}

func TestEmptyShareToken(t *testing.T) {
	if got := EmptyShareToken().String(); got != "" {
		t.Errorf("EmptyShareToken().String() = %q, want empty", got)
	}
	if got := EmptyShareToken().Masked(); got != "" {
		t.Errorf("EmptyShareToken().Masked() = %q, want empty", got)
	}
}
