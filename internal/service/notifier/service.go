package notifier

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/domain/event"
	"github.com/vertextoedge/sharelink/internal/domain/repository"
	"github.com/vertextoedge/sharelink/internal/port"
)

// Config contains notification dispatcher configuration
type Config struct {
	// BaseURL prefixes the share link in notification bodies
	BaseURL string

	// Subject is the subject line of notification emails
	Subject string

	// SendTimeout bounds a single send
	SendTimeout time.Duration

	// MaxRecipients caps the recipients of one notify call
	MaxRecipients int

	// MaxAttempts stops retrying a notification after this many sends
	MaxAttempts int
}

// DefaultConfig returns default notifier configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:8080",
		Subject:       "A file has been shared with you",
		SendTimeout:   10 * time.Second,
		MaxRecipients: 50,
		MaxAttempts:   5,
	}
}

// RetryReport summarizes one retry pass over undelivered notifications
type RetryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Service sends share notifications and tracks their delivery
type Service struct {
	config *Config
	store  repository.Store
	mailer port.MailSender
	files  port.FileStore
	clock  port.Clock
	events event.EventDispatcher
	logger *zap.Logger
	newID  func() string
}

// New creates a new notifier Service
func New(cfg *Config, store repository.Store, mailer port.MailSender, files port.FileStore, clock port.Clock, events event.EventDispatcher, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxRecipients == 0 {
		cfg.MaxRecipients = 50
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Subject == "" {
		cfg.Subject = "A file has been shared with you"
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
		store:  store,
		mailer: mailer,
		files:  files,
		clock:  clock,
		events: events,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Notify emails the share link to each recipient and records one
// notification row per valid address. A failed send never aborts the
// remaining recipients; the outcome of each is in the returned results.
// Unparseable and duplicate addresses are reported in the results with an
// error but are not persisted, so they are never retry candidates.
func (s *Service) Notify(ctx context.Context, shareID int64, recipients []string) ([]domain.NotificationResult, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrNoRecipients)
	}
	if len(recipients) > s.config.MaxRecipients {
		return nil, domain.NewValidationError("recipients", fmt.Sprintf("at most %d recipients allowed", s.config.MaxRecipients))
	}

	share, err := s.store.GetShareByID(ctx, shareID)
	if err != nil {
		return nil, err
	}

	subject, body := s.compose(ctx, share)
	results := make([]domain.NotificationResult, 0, len(recipients))
	seen := make(map[string]bool, len(recipients))

	for _, raw := range recipients {
		result := domain.NotificationResult{Recipient: strings.TrimSpace(raw)}

		addr, err := mail.ParseAddress(result.Recipient)
		if err != nil {
			result.Error = "invalid email address"
			results = append(results, result)
			continue
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			result.Error = "duplicate recipient"
			results = append(results, result)
			continue
		}
		seen[key] = true

		results = append(results, s.sendOne(ctx, share, addr.Address, subject, body))
	}

	return results, nil
}

// NotifyAsOwner is Notify restricted to the share's owner
func (s *Service) NotifyAsOwner(ctx context.Context, shareID, ownerID int64, recipients []string) ([]domain.NotificationResult, error) {
	share, err := s.store.GetShareByID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !share.IsOwnedBy(ownerID) {
		return nil, domain.ErrNotOwner
	}
	return s.Notify(ctx, shareID, recipients)
}

func (s *Service) sendOne(ctx context.Context, share *domain.Share, to, subject, body string) domain.NotificationResult {
	now := s.clock.Now()
	n := &domain.ShareNotification{
		ShareID:        share.ID,
		NotificationID: s.newID(),
		RecipientEmail: to,
		SentAt:         now,
		Attempts:       1,
	}
	result := domain.NotificationResult{Recipient: to, NotificationID: n.NotificationID}

	if err := s.send(ctx, to, subject, body); err != nil {
		n.LastError = err.Error()
		result.Error = "delivery failed"
		s.logger.Warn("notification send failed",
			zap.Int64("share_id", share.ID),
			zap.String("notification_id", n.NotificationID),
			zap.Error(err))
		s.events.Dispatch(event.NewNotificationFailed(share.ID, n.NotificationID, 1, err.Error(), now))
	} else {
		n.MarkDelivered(s.clock.Now())
		result.Delivered = true
		s.events.Dispatch(event.NewNotificationSent(share.ID, n.NotificationID, 1, now))
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Error("failed to record notification",
			zap.Int64("share_id", share.ID),
			zap.String("notification_id", n.NotificationID),
			zap.Error(err))
		if result.Error == "" {
			result.Error = "delivered but not recorded"
		}
	}

	return result
}

func (s *Service) send(ctx context.Context, to, subject, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()
	return s.mailer.Send(sendCtx, to, subject, body)
}

// compose builds the subject and body of a notification for share
func (s *Service) compose(ctx context.Context, share *domain.Share) (string, string) {
	name := "a file"
	if s.files != nil {
		if meta, err := s.files.GetFileMetadata(ctx, share.FileID); err == nil && meta.Name != "" {
			name = fmt.Sprintf("%q", meta.Name)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have been given access to %s.\n\n", name)
	fmt.Fprintf(&sb, "Open it here: %s/s/%s\n", strings.TrimRight(s.config.BaseURL, "/"), share.Token)
	if share.Permission == domain.PermissionViewOnly {
		sb.WriteString("\nThis link allows viewing only.\n")
	}
	if share.ExpiresAt != nil {
		fmt.Fprintf(&sb, "The link expires on %s.\n", share.ExpiresAt.UTC().Format(time.RFC1123))
	}
	if share.MaxAccess != nil {
		fmt.Fprintf(&sb, "The link can be used %d times.\n", *share.MaxAccess)
	}

	return s.config.Subject, sb.String()
}

// FindRetryable returns undelivered notifications sent within maxAge
func (s *Service) FindRetryable(ctx context.Context, maxAge time.Duration) ([]*domain.ShareNotification, error) {
	since := s.clock.Now().Add(-maxAge)
	notifications, err := s.store.ListUndeliveredSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered notifications: %w", err)
	}
	return notifications, nil
}

// RetryPending resends retryable notifications that are still below the
// attempt cap. Shares that are no longer usable are skipped.
func (s *Service) RetryPending(ctx context.Context, maxAge time.Duration) (*RetryReport, error) {
	pending, err := s.FindRetryable(ctx, maxAge)
	if err != nil {
		return nil, err
	}

	report := &RetryReport{}
	shares := make(map[int64]*domain.Share)

	for _, n := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if n.Attempts >= s.config.MaxAttempts {
			report.Skipped++
			continue
		}

		share, ok := shares[n.ShareID]
		if !ok {
			share, err = s.store.GetShareByID(ctx, n.ShareID)
			if err != nil {
				s.logger.Warn("failed to load share for notification retry",
					zap.Int64("share_id", n.ShareID),
					zap.Error(err))
				report.Skipped++
				continue
			}
			shares[n.ShareID] = share
		}
		if !share.IsUsableAt(s.clock.Now()) {
			report.Skipped++
			continue
		}

		report.Attempted++
		attempt := n.Attempts + 1
		subject, body := s.compose(ctx, share)

		if err := s.send(ctx, n.RecipientEmail, subject, body); err != nil {
			report.Failed++
			s.events.Dispatch(event.NewNotificationFailed(n.ShareID, n.NotificationID, attempt, err.Error(), s.clock.Now()))
			if err := s.store.RecordNotificationFailure(ctx, n.NotificationID, err.Error()); err != nil {
				s.logger.Warn("failed to record notification failure",
					zap.String("notification_id", n.NotificationID),
					zap.Error(err))
			}
			continue
		}

		report.Delivered++
		s.events.Dispatch(event.NewNotificationSent(n.ShareID, n.NotificationID, attempt, s.clock.Now()))
		if _, err := s.store.MarkNotificationDelivered(ctx, n.NotificationID, s.clock.Now()); err != nil {
			s.logger.Warn("failed to mark notification delivered",
				zap.String("notification_id", n.NotificationID),
				zap.Error(err))
		}
	}

	return report, nil
}
