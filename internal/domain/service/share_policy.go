package service

import (
	"fmt"
	"time"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// PolicyConfig holds the tunables of the share policy
type PolicyConfig struct {
	// MaxAccessCeiling caps the max_access an owner may request (0 = no cap)
	MaxAccessCeiling int64

	// MaxLifetime caps how far in the future expires_at may be (0 = no cap)
	MaxLifetime time.Duration

	// DefaultLifetime is applied when a share is created without expiry (0 = never expires)
	DefaultLifetime time.Duration

	// LogDeniedAccess records refused attempts in the denial log
	LogDeniedAccess bool
}

// DefaultPolicyConfig returns the default policy configuration
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxAccessCeiling: 10000,
		MaxLifetime:      365 * 24 * time.Hour,
		LogDeniedAccess:  true,
	}
}

// AccessDecision is the outcome of evaluating an access attempt
type AccessDecision struct {
	Granted bool
	Reason  domain.DenialReason

	// Deactivate is set when the share must be flipped inactive as a
	// consequence of this evaluation (lazy expiration or exhaustion)
	Deactivate         bool
	DeactivationReason domain.DeactivationReason
}

// granted is the decision for a permitted access
func granted() AccessDecision {
	return AccessDecision{Granted: true}
}

func denied(reason domain.DenialReason) AccessDecision {
	return AccessDecision{Reason: reason}
}

// SharePolicy is a domain service deciding whether an access is permitted
type SharePolicy struct {
	config PolicyConfig
}

// NewSharePolicy creates a new SharePolicy
func NewSharePolicy(cfg PolicyConfig) *SharePolicy {
	return &SharePolicy{config: cfg}
}

// Config returns the policy configuration
func (p *SharePolicy) Config() PolicyConfig {
	return p.config
}

// EvaluateState checks the share's own state: active flag, expiry and
// access budget, in that order. It never inspects the requested access type.
// An inactive share reports the reason it was deactivated for.
func (p *SharePolicy) EvaluateState(share *domain.Share, now time.Time) AccessDecision {
	if share == nil {
		return denied(domain.DenialNotFound)
	}
	if !share.Active {
		return denied(inactiveReason(share))
	}
	if share.IsExpiredAt(now) {
		d := denied(domain.DenialExpired)
		d.Deactivate = true
		d.DeactivationReason = domain.DeactivationExpired
		return d
	}
	if share.IsExhausted() {
		d := denied(domain.DenialAccessLimitReached)
		d.Deactivate = true
		d.DeactivationReason = domain.DeactivationExhausted
		return d
	}
	return granted()
}

func inactiveReason(share *domain.Share) domain.DenialReason {
	switch share.DeactivationReason {
	case domain.DeactivationExhausted:
		return domain.DenialAccessLimitReached
	case domain.DeactivationExpired:
		return domain.DenialExpired
	default:
		return domain.DenialRevokedOrExhausted
	}
}

// Evaluate decides a full access attempt. State denials take precedence
// over the permission check so an expired or exhausted share reports its
// own reason; a permission denial never changes state.
func (p *SharePolicy) Evaluate(share *domain.Share, requested domain.AccessType, now time.Time) AccessDecision {
	d := p.EvaluateState(share, now)
	if !d.Granted {
		return d
	}
	if !share.Permission.Allows(requested) {
		return denied(domain.DenialPermissionDenied)
	}
	return granted()
}

// ValidateNew checks a share about to be created against the policy limits
// and applies the default lifetime.
func (p *SharePolicy) ValidateNew(share *domain.Share, now time.Time) error {
	if err := share.ValidateNew(now); err != nil {
		return err
	}
	if share.MaxAccess != nil && p.config.MaxAccessCeiling > 0 && *share.MaxAccess > p.config.MaxAccessCeiling {
		return domain.NewValidationError("max_access", fmt.Sprintf("must not exceed %d", p.config.MaxAccessCeiling))
	}
	if share.ExpiresAt == nil && p.config.DefaultLifetime > 0 {
		exp := now.Add(p.config.DefaultLifetime)
		share.ExpiresAt = &exp
	}
	if share.ExpiresAt != nil && p.config.MaxLifetime > 0 && share.ExpiresAt.After(now.Add(p.config.MaxLifetime)) {
		return domain.NewValidationError("expires_at", fmt.Sprintf("must be within %s", p.config.MaxLifetime))
	}
	return nil
}
