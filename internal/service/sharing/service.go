package sharing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/domain/event"
	"github.com/vertextoedge/sharelink/internal/domain/repository"
	domainsvc "github.com/vertextoedge/sharelink/internal/domain/service"
	"github.com/vertextoedge/sharelink/internal/domain/vo"
	"github.com/vertextoedge/sharelink/internal/port"
)

const maxUserAgentLength = 512

// Config contains sharing service configuration
type Config struct {
	Policy domainsvc.PolicyConfig
}

// DefaultConfig returns default sharing configuration
func DefaultConfig() *Config {
	return &Config{Policy: domainsvc.DefaultPolicyConfig()}
}

// CreateShareRequest carries the owner's input for a new share
type CreateShareRequest struct {
	FileID     int64
	OwnerID    int64
	Permission domain.Permission
	ExpiresAt  *time.Time
	MaxAccess  *int64
}

// AccessRequest describes one access attempt arriving through a share link
type AccessRequest struct {
	Token      string
	AccessType domain.AccessType
	ClientIP   string
	UserAgent  string
}

// AccessResult is the outcome of evaluating a share link.
// Share is nil when the token matched nothing.
type AccessResult struct {
	Granted bool
	Reason  domain.DenialReason
	Share   *domain.Share
}

// Err maps a denial to its sentinel error; nil when granted
func (r *AccessResult) Err() error {
	if r.Granted {
		return nil
	}
	return r.Reason.Err()
}

func deniedResult(reason domain.DenialReason, share *domain.Share) *AccessResult {
	return &AccessResult{Reason: reason, Share: share}
}

// Service owns the share lifecycle: creation, access decisions, access
// recording, revocation and per-share analytics.
type Service struct {
	config *Config
	policy *domainsvc.SharePolicy
	tokens *TokenGenerator
	store  repository.Store
	files  port.FileStore
	clock  port.Clock
	events event.EventDispatcher
	logger *zap.Logger
}

// New creates a new sharing Service
func New(cfg *Config, store repository.Store, files port.FileStore, clock port.Clock, events event.EventDispatcher, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		policy: domainsvc.NewSharePolicy(cfg.Policy),
		tokens: NewTokenGenerator(store),
		store:  store,
		files:  files,
		clock:  clock,
		events: events,
		logger: logger,
	}
}

// CreateShare creates a share link for a file the caller owns.
// An expiry already in the past is accepted; such a share is never granted.
func (s *Service) CreateShare(ctx context.Context, req CreateShareRequest) (*domain.Share, error) {
	now := s.clock.Now()

	share := &domain.Share{
		OwnerID:    req.OwnerID,
		FileID:     req.FileID,
		Permission: req.Permission,
		CreatedAt:  now,
		ExpiresAt:  req.ExpiresAt,
		Active:     true,
		MaxAccess:  req.MaxAccess,
	}
	if err := s.policy.ValidateNew(share, now); err != nil {
		return nil, err
	}

	file, err := s.files.GetFileMetadata(ctx, req.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %d: %w", req.FileID, err)
	}
	if !file.IsOwnedBy(req.OwnerID) {
		return nil, domain.ErrNotFileOwner
	}

	for attempt := 0; ; attempt++ {
		token, err := s.tokens.GenerateUnique(ctx)
		if err != nil {
			return nil, err
		}
		share.Token = token

		err = s.store.CreateShare(ctx, share)
		if err == nil {
			break
		}
		// token taken between the existence check and the insert
		if errors.Is(err, domain.ErrAlreadyExists) && attempt+1 < maxTokenAttempts {
			continue
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to store share: %w", domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to store share: %w", err)
	}

	s.logger.Info("share created",
		zap.Int64("share_id", share.ID),
		zap.String("token", share.GetToken().Masked()),
		zap.Int64("file_id", share.FileID))
	s.events.Dispatch(event.NewShareCreated(share, now))

	return share, nil
}

// GetShare retrieves a share by ID
func (s *Service) GetShare(ctx context.Context, shareID int64) (*domain.Share, error) {
	return s.store.GetShareByID(ctx, shareID)
}

// ListShares returns every share the owner created, newest first
func (s *Service) ListShares(ctx context.Context, ownerID int64) ([]*domain.Share, error) {
	shares, err := s.store.ListSharesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

// lookup resolves a raw token to a share. Malformed tokens never reach the store.
func (s *Service) lookup(ctx context.Context, token string) (*domain.Share, error) {
	st, err := vo.NewShareToken(token)
	if err != nil {
		return nil, domain.ErrShareNotFound
	}
	return s.store.GetShareByToken(ctx, st.String())
}

// ResolveAccess decides whether a share link grants the requested access.
// Expired or exhausted shares are deactivated as a side effect; access
// counters are never touched. Denials are returned as results, not errors.
func (s *Service) ResolveAccess(ctx context.Context, token string, requested domain.AccessType) (*AccessResult, error) {
	if _, err := domain.ParseAccessType(string(requested)); err != nil {
		return nil, err
	}

	share, err := s.lookup(ctx, token)
	if errors.Is(err, domain.ErrShareNotFound) {
		return deniedResult(domain.DenialNotFound, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up share: %w", err)
	}

	now := s.clock.Now()
	decision := s.policy.Evaluate(share, requested, now)

	if decision.Deactivate {
		s.deactivate(ctx, share, decision.DeactivationReason, now)
	}
	if !decision.Granted {
		return deniedResult(decision.Reason, share), nil
	}

	return &AccessResult{Granted: true, Share: share}, nil
}

// PeekAccess reports whether a share link is currently usable without
// changing any state. The requested access type is not considered.
func (s *Service) PeekAccess(ctx context.Context, token string) (*AccessResult, error) {
	share, err := s.lookup(ctx, token)
	if errors.Is(err, domain.ErrShareNotFound) {
		return deniedResult(domain.DenialNotFound, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up share: %w", err)
	}

	decision := s.policy.EvaluateState(share, s.clock.Now())
	if !decision.Granted {
		return deniedResult(decision.Reason, share), nil
	}
	return &AccessResult{Granted: true, Share: share}, nil
}

// deactivate flips a share inactive during access evaluation. A failed write
// is logged; the denial stands and the next sweep catches the row.
func (s *Service) deactivate(ctx context.Context, share *domain.Share, reason domain.DeactivationReason, now time.Time) {
	changed, err := s.store.DeactivateShare(ctx, share.ID, reason, now)
	if err != nil {
		s.logger.Warn("failed to deactivate share",
			zap.Int64("share_id", share.ID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return
	}
	share.Deactivate(reason, now)
	if changed {
		s.events.Dispatch(event.NewShareDeactivated(share.ID, reason, now))
	}
}

// RecordAccess commits one access: the counter increment, the exhaustion
// check and the access row are written atomically. It returns the
// post-update share, or the reason the share can no longer be used.
func (s *Service) RecordAccess(ctx context.Context, share *domain.Share, accessType domain.AccessType, clientIP, userAgent string) (*domain.Share, error) {
	if share == nil {
		return nil, domain.ErrShareNotFound
	}
	if _, err := domain.ParseAccessType(string(accessType)); err != nil {
		return nil, err
	}
	if !share.Permission.Allows(accessType) {
		return nil, domain.ErrPermissionDenied
	}

	now := s.clock.Now()
	access := &domain.ShareAccess{
		ShareID:    share.ID,
		AccessorIP: clientIP,
		UserAgent:  truncate(userAgent, maxUserAgentLength),
		AccessedAt: now,
		AccessType: accessType,
	}

	updated, err := s.store.RecordAccess(ctx, access)
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(event.NewShareAccessed(updated, accessType, clientIP, now))
	if !updated.Active && updated.DeactivationReason == domain.DeactivationExhausted {
		s.logger.Info("share access budget exhausted",
			zap.Int64("share_id", updated.ID),
			zap.Int64("access_count", updated.AccessCount))
		s.events.Dispatch(event.NewShareDeactivated(updated.ID, domain.DeactivationExhausted, now))
	}

	return updated, nil
}

// RecordDenial logs a refused attempt when denial logging is enabled.
// It never touches the share's access counter.
func (s *Service) RecordDenial(ctx context.Context, token string, accessType domain.AccessType, reason domain.DenialReason, clientIP, userAgent string) error {
	var shareID *int64
	if reason != domain.DenialNotFound {
		if share, err := s.lookup(ctx, token); err == nil {
			shareID = &share.ID
		}
	}
	return s.recordDenial(ctx, token, shareID, accessType, reason, clientIP, userAgent)
}

func (s *Service) recordDenial(ctx context.Context, token string, shareID *int64, accessType domain.AccessType, reason domain.DenialReason, clientIP, userAgent string) error {
	now := s.clock.Now()
	hint := vo.MaskToken(token)

	var eventShareID int64
	if shareID != nil {
		eventShareID = *shareID
	}
	s.events.Dispatch(event.NewShareAccessDenied(eventShareID, hint, accessType, reason, clientIP, now))

	if !s.policy.Config().LogDeniedAccess {
		return nil
	}

	err := s.store.RecordDenial(ctx, &domain.ShareDenial{
		ShareID:     shareID,
		TokenHint:   hint,
		AccessorIP:  clientIP,
		UserAgent:   truncate(userAgent, maxUserAgentLength),
		AttemptedAt: now,
		AccessType:  accessType,
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("failed to record denial: %w", err)
	}
	return nil
}

// Access runs a full access attempt: resolve, then either commit the access
// or log the denial. A budget lost to a concurrent caller is reported as a
// denial with the precise reason.
func (s *Service) Access(ctx context.Context, req AccessRequest) (*AccessResult, error) {
	result, err := s.ResolveAccess(ctx, req.Token, req.AccessType)
	if err != nil {
		return nil, err
	}

	if result.Granted {
		updated, err := s.RecordAccess(ctx, result.Share, req.AccessType, req.ClientIP, req.UserAgent)
		if err == nil {
			result.Share = updated
			return result, nil
		}
		reason, ok := denialReasonFor(err)
		if !ok {
			return nil, err
		}
		result = deniedResult(reason, result.Share)
	}

	var shareID *int64
	if result.Share != nil {
		shareID = &result.Share.ID
	}
	if err := s.recordDenial(ctx, req.Token, shareID, req.AccessType, result.Reason, req.ClientIP, req.UserAgent); err != nil {
		s.logger.Warn("failed to record denied access",
			zap.String("token", vo.MaskToken(req.Token)),
			zap.Error(err))
	}

	return result, nil
}

// denialReasonFor maps a recording failure back onto a denial reason
func denialReasonFor(err error) (domain.DenialReason, bool) {
	switch {
	case errors.Is(err, domain.ErrShareNotFound):
		return domain.DenialNotFound, true
	case errors.Is(err, domain.ErrShareExpired):
		return domain.DenialExpired, true
	case errors.Is(err, domain.ErrAccessLimitReached):
		return domain.DenialAccessLimitReached, true
	case errors.Is(err, domain.ErrShareRevoked):
		return domain.DenialRevokedOrExhausted, true
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.DenialPermissionDenied, true
	default:
		return domain.DenialNone, false
	}
}

// Revoke deactivates a share on behalf of its owner.
// Revoking an inactive share is a no-op.
func (s *Service) Revoke(ctx context.Context, shareID, ownerID int64) error {
	share, err := s.store.GetShareByID(ctx, shareID)
	if err != nil {
		return err
	}
	if !share.IsOwnedBy(ownerID) {
		return domain.ErrNotOwner
	}

	now := s.clock.Now()
	if !share.Revoke(now) {
		return nil
	}
	changed, err := s.store.DeactivateShare(ctx, shareID, domain.DeactivationRevoked, now)
	if err != nil {
		return fmt.Errorf("failed to revoke share: %w", err)
	}
	if changed {
		s.logger.Info("share revoked", zap.Int64("share_id", shareID), zap.Int64("owner_id", ownerID))
		s.events.Dispatch(event.NewShareRevoked(shareID, ownerID, now))
	}
	return nil
}

// GetAnalytics summarizes the usage of one share for its owner
func (s *Service) GetAnalytics(ctx context.Context, shareID, ownerID int64) (*domain.AnalyticsSummary, error) {
	share, err := s.store.GetShareByID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !share.IsOwnedBy(ownerID) {
		return nil, domain.ErrNotOwner
	}

	accessStats, err := s.store.GetShareAccessStats(ctx, shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to load access stats: %w", err)
	}
	notificationStats, err := s.store.GetNotificationStats(ctx, shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification stats: %w", err)
	}

	summary := &domain.AnalyticsSummary{
		ShareID:                share.ID,
		Active:                 share.Active,
		Expired:                share.IsExpiredAt(s.clock.Now()),
		AccessCount:            share.AccessCount,
		MaxAccess:              share.MaxAccess,
		Accesses:               accessStats.Accesses,
		UniqueIPs:              accessStats.UniqueIPs,
		LastAccessedAt:         accessStats.LastAccessedAt,
		Denials:                accessStats.Denials,
		NotificationsSent:      notificationStats.Sent,
		NotificationsDelivered: notificationStats.Delivered,
	}
	if remaining, limited := share.RemainingAccesses(); limited {
		summary.RemainingAccesses = &remaining
	}

	return summary, nil
}

// GetFileMetadata returns the metadata of the shared file
func (s *Service) GetFileMetadata(ctx context.Context, share *domain.Share) (*domain.FileMetadata, error) {
	return s.files.GetFileMetadata(ctx, share.FileID)
}

// OpenContent opens the shared file for streaming. The caller must close it.
func (s *Service) OpenContent(ctx context.Context, share *domain.Share) (io.ReadCloser, error) {
	return s.files.ReadFileStream(ctx, share.FileID)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
