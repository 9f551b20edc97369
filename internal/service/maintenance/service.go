package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/domain/event"
	"github.com/vertextoedge/sharelink/internal/domain/repository"
	"github.com/vertextoedge/sharelink/internal/port"
	"github.com/vertextoedge/sharelink/internal/service/notifier"
)

// Job names reported in events and logs
const (
	JobSweepExpired      = "sweep_expired"
	JobSweepExhausted    = "sweep_exhausted"
	JobCleanup           = "cleanup"
	JobNotificationRetry = "notification_retry"
)

// Config contains maintenance service configuration
type Config struct {
	// SweepInterval is how often expired and exhausted shares are deactivated
	SweepInterval time.Duration

	// CleanupInterval is how often retention cleanup runs
	CleanupInterval time.Duration

	// NotificationRetryInterval is how often undelivered notifications are resent (0 = never)
	NotificationRetryInterval time.Duration

	// NotificationRetryMaxAge bounds which undelivered notifications are retried
	NotificationRetryMaxAge time.Duration

	// RetentionDays is how long access log rows are kept
	RetentionDays int

	// AncillaryRetention is how long denial rows and failed notifications are kept
	AncillaryRetention time.Duration

	// SuspiciousWindow is the default look-back of suspicious activity detection
	SuspiciousWindow time.Duration

	// SuspiciousThreshold is the default per-IP access count that flags an IP
	SuspiciousThreshold int64

	// CountDenials adds denied attempts to the per-IP count
	CountDenials bool

	// MaxQueryLatency degrades health when usage queries take longer
	MaxQueryLatency time.Duration

	// MaxSuspiciousIPs degrades health when more IPs are flagged
	MaxSuspiciousIPs int
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		SweepInterval:             time.Minute,
		CleanupInterval:           time.Hour,
		NotificationRetryInterval: 5 * time.Minute,
		NotificationRetryMaxAge:   24 * time.Hour,
		RetentionDays:             90,
		AncillaryRetention:        30 * 24 * time.Hour,
		SuspiciousWindow:          time.Hour,
		SuspiciousThreshold:       100,
		MaxQueryLatency:           500 * time.Millisecond,
		MaxSuspiciousIPs:          10,
	}
}

// NotificationRetrier resends undelivered notifications
type NotificationRetrier interface {
	RetryPending(ctx context.Context, maxAge time.Duration) (*notifier.RetryReport, error)
}

// Service handles sweeps, retention, suspicious activity detection and
// usage analytics
type Service struct {
	config  *Config
	store   repository.Store
	retrier NotificationRetrier
	clock   port.Clock
	events  event.EventDispatcher
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. retrier may be nil.
func New(cfg *Config, store repository.Store, retrier NotificationRetrier, clock port.Clock, events event.EventDispatcher, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.NotificationRetryMaxAge == 0 {
		cfg.NotificationRetryMaxAge = 24 * time.Hour
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 90
	}
	if cfg.AncillaryRetention == 0 {
		cfg.AncillaryRetention = 30 * 24 * time.Hour
	}
	if cfg.SuspiciousWindow == 0 {
		cfg.SuspiciousWindow = time.Hour
	}
	if cfg.SuspiciousThreshold == 0 {
		cfg.SuspiciousThreshold = 100
	}
	if cfg.MaxQueryLatency == 0 {
		cfg.MaxQueryLatency = 500 * time.Millisecond
	}
	if cfg.MaxSuspiciousIPs == 0 {
		cfg.MaxSuspiciousIPs = 10
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
		config:  cfg,
		store:   store,
		retrier: retrier,
		clock:   clock,
		events:  events,
		logger:  logger,
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("notification_retry_interval", s.config.NotificationRetryInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// a nil channel never fires
	var retryC <-chan time.Time
	if s.retrier != nil && s.config.NotificationRetryInterval > 0 {
		retryTicker := time.NewTicker(s.config.NotificationRetryInterval)
		defer retryTicker.Stop()
		retryC = retryTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("failed to sweep expired shares", zap.Error(err))
			}
			if _, err := s.SweepExhausted(ctx); err != nil {
				s.logger.Error("failed to sweep exhausted shares", zap.Error(err))
			}
		case <-cleanupTicker.C:
			if _, err := s.CleanupLogs(ctx, s.config.RetentionDays); err != nil {
				s.logger.Error("failed to clean up logs", zap.Error(err))
			}
		case <-retryC:
			s.retryNotifications(ctx)
		}
	}
}

// SweepExpired deactivates every active share whose expiry has passed
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.sweep(ctx, JobSweepExpired, s.store.SweepExpired)
}

// SweepExhausted deactivates every active share whose access budget is used up
func (s *Service) SweepExhausted(ctx context.Context) (int, error) {
	return s.sweep(ctx, JobSweepExhausted, s.store.SweepExhausted)
}

func (s *Service) sweep(ctx context.Context, job string, run func(context.Context, time.Time) (int64, error)) (int, error) {
	start := time.Now()
	now := s.clock.Now()

	n, err := run(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", job, err)
	}
	if n > 0 {
		s.logger.Info("deactivated shares", zap.String("job", job), zap.Int64("count", n))
	}
	s.events.Dispatch(event.NewSweepCompleted(job, n, time.Since(start), now))

	return int(n), nil
}

// CleanupLogs hard-deletes access rows older than retentionDays (the
// configured default when retentionDays <= 0), and denial rows and
// undelivered notifications older than the ancillary retention. Every rule
// runs even if an earlier one failed; failures are listed in the report.
func (s *Service) CleanupLogs(ctx context.Context, retentionDays int) (*domain.CleanupReport, error) {
	if retentionDays <= 0 {
		retentionDays = s.config.RetentionDays
	}

	start := time.Now()
	now := s.clock.Now()
	accessCutoff := now.AddDate(0, 0, -retentionDays)
	ancillaryCutoff := now.Add(-s.config.AncillaryRetention)

	report := &domain.CleanupReport{}
	var errs []error

	record := func(what string, n int64, err error, dst *int64) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
			report.Errors = append(report.Errors, what+": "+err.Error())
			return
		}
		*dst = n
	}

	n, err := s.store.DeleteAccessesBefore(ctx, accessCutoff)
	record("access logs", n, err, &report.AccessLogsDeleted)

	n, err = s.store.DeleteDenialsBefore(ctx, ancillaryCutoff)
	record("denials", n, err, &report.DenialsDeleted)

	n, err = s.store.DeleteUndeliveredBefore(ctx, ancillaryCutoff)
	record("notifications", n, err, &report.NotificationsDeleted)

	total := report.AccessLogsDeleted + report.DenialsDeleted + report.NotificationsDeleted
	if total > 0 {
		s.logger.Info("cleaned up old records",
			zap.Int("retention_days", retentionDays),
			zap.Int64("access_logs", report.AccessLogsDeleted),
			zap.Int64("denials", report.DenialsDeleted),
			zap.Int64("notifications", report.NotificationsDeleted))
	}
	s.events.Dispatch(event.NewSweepCompleted(JobCleanup, total, time.Since(start), now))

	return report, errors.Join(errs...)
}

// DetectSuspicious flags IPs whose accesses inside the window reach
// threshold. Denied attempts are reported per IP and count towards the
// threshold only with CountDenials. Zero arguments fall back to the
// configured defaults.
func (s *Service) DetectSuspicious(ctx context.Context, window time.Duration, threshold int64) (*domain.SuspiciousReport, error) {
	if window <= 0 {
		window = s.config.SuspiciousWindow
	}
	if threshold <= 0 {
		threshold = s.config.SuspiciousThreshold
	}

	since := s.clock.Now().Add(-window)
	activity, err := s.store.GetIPActivity(ctx, since, threshold, s.config.CountDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip activity: %w", err)
	}
	if activity == nil {
		activity = []domain.IPActivity{}
	}

	for _, a := range activity {
		s.logger.Warn("suspicious share activity",
			zap.String("ip", a.IP),
			zap.Int64("accesses", a.Accesses),
			zap.Int64("denials", a.Denials),
			zap.Int64("shares", a.Shares))
	}

	return &domain.SuspiciousReport{
		Since:     since,
		Window:    window.String(),
		Threshold: threshold,
		Flagged:   activity,
	}, nil
}

// UsageAnalytics builds the global usage report and derives health from
// query latency and suspicious activity
func (s *Service) UsageAnalytics(ctx context.Context) (*domain.UsageReport, error) {
	now := s.clock.Now()
	start := time.Now()

	shares, err := s.store.GetShareCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count shares: %w", err)
	}
	last24h, err := s.store.GetAccessCountsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count accesses: %w", err)
	}
	last7d, err := s.store.GetAccessCountsSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count accesses: %w", err)
	}
	suspicious, err := s.store.GetIPActivity(ctx, now.Add(-s.config.SuspiciousWindow), s.config.SuspiciousThreshold, s.config.CountDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip activity: %w", err)
	}
	latency := time.Since(start)

	report := &domain.UsageReport{
		GeneratedAt:    now,
		Shares:         *shares,
		Last24h:        *last24h,
		Last7d:         *last7d,
		SuspiciousIPs:  len(suspicious),
		QueryLatencyMs: latency.Milliseconds(),
		Health:         domain.HealthHealthy,
	}

	if latency > s.config.MaxQueryLatency {
		report.HealthReasons = append(report.HealthReasons,
			fmt.Sprintf("query latency %s exceeds %s", latency.Round(time.Millisecond), s.config.MaxQueryLatency))
	}
	if len(suspicious) > s.config.MaxSuspiciousIPs {
		report.HealthReasons = append(report.HealthReasons,
			fmt.Sprintf("%d suspicious IPs exceed %d", len(suspicious), s.config.MaxSuspiciousIPs))
	}
	if len(report.HealthReasons) > 0 {
		report.Health = domain.HealthDegraded
	}

	return report, nil
}

func (s *Service) retryNotifications(ctx context.Context) {
	start := time.Now()
	report, err := s.retrier.RetryPending(ctx, s.config.NotificationRetryMaxAge)
	if err != nil {
		s.logger.Error("failed to retry notifications", zap.Error(err))
		return
	}
	if report.Attempted > 0 {
		s.logger.Info("retried notifications",
			zap.Int("attempted", report.Attempted),
			zap.Int("delivered", report.Delivered),
			zap.Int("failed", report.Failed))
	}
	s.events.Dispatch(event.NewSweepCompleted(JobNotificationRetry, int64(report.Delivered), time.Since(start), s.clock.Now()))
}
