package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case ShareCreated:
		fields := []zap.Field{
			zap.Int64("share_id", e.ShareID),
			zap.Int64("file_id", e.FileID),
			zap.Int64("owner_id", e.OwnerID),
			zap.String("permission", string(e.Permission)),
		}
		if e.ExpiresAt != nil {
			fields = append(fields, zap.Time("expires_at", *e.ExpiresAt))
		}
		if e.MaxAccess != nil {
			fields = append(fields, zap.Int64("max_access", *e.MaxAccess))
		}
		h.logger.Info("share created", fields...)
	case ShareAccessed:
		h.logger.Debug("share accessed",
			zap.Int64("share_id", e.ShareID),
			zap.Int64("file_id", e.FileID),
			zap.String("access_type", string(e.AccessType)),
			zap.String("client_ip", e.ClientIP),
			zap.Int64("access_count", e.AccessCount),
			zap.Bool("exhausted", e.Exhausted),
		)
	case ShareAccessDenied:
		h.logger.Info("share access denied",
			zap.Int64("share_id", e.ShareID),
			zap.String("token", e.TokenHint),
			zap.String("access_type", string(e.AccessType)),
			zap.String("reason", string(e.Reason)),
			zap.String("client_ip", e.ClientIP),
		)
	case ShareDeactivated:
		h.logger.Info("share deactivated",
			zap.Int64("share_id", e.ShareID),
			zap.String("reason", string(e.Reason)),
		)
	case ShareRevoked:
		h.logger.Info("share revoked",
			zap.Int64("share_id", e.ShareID),
			zap.Int64("owner_id", e.OwnerID),
		)
	case NotificationSent:
		h.logger.Debug("notification sent",
			zap.Int64("share_id", e.ShareID),
			zap.String("notification_id", e.NotificationID),
			zap.Int("attempt", e.Attempt),
		)
	case NotificationFailed:
		h.logger.Warn("notification failed",
			zap.Int64("share_id", e.ShareID),
			zap.String("notification_id", e.NotificationID),
			zap.Int("attempt", e.Attempt),
			zap.String("error", e.Error),
		)
	case SweepCompleted:
		h.logger.Info("maintenance job completed",
			zap.String("job", e.Job),
			zap.Int64("affected", e.Affected),
			zap.Duration("duration", e.Duration),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{AllEvents}
}

// MetricsHandler turns events into Prometheus counters
type MetricsHandler struct {
	sharesCreated  prometheus.Counter
	accesses       *prometheus.CounterVec
	denials        *prometheus.CounterVec
	deactivations  *prometheus.CounterVec
	revocations    prometheus.Counter
	notifications  *prometheus.CounterVec
	maintenanceRun *prometheus.CounterVec
	maintenanceAff *prometheus.CounterVec
}

// NewMetricsHandler creates a new MetricsHandler and registers its collectors
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	const namespace = "sharelink"

	h := &MetricsHandler{
		sharesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "created_total",
			Help:      "Total number of share links created",
		}),
		accesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "accesses_total",
			Help:      "Total number of committed share accesses",
		}, []string{"access_type"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "denials_total",
			Help:      "Total number of refused share access attempts",
		}, []string{"reason"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "deactivations_total",
			Help:      "Total number of shares deactivated on access",
		}, []string{"reason"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shares",
			Name:      "revocations_total",
			Help:      "Total number of shares revoked by their owner",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "attempts_total",
			Help:      "Total number of notification send attempts",
		}, []string{"outcome"}),
		maintenanceRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Total number of maintenance job runs",
		}, []string{"job"}),
		maintenanceAff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "affected_rows_total",
			Help:      "Total number of rows changed by maintenance jobs",
		}, []string{"job"}),
	}

	if reg != nil {
		reg.MustRegister(
			h.sharesCreated, h.accesses, h.denials, h.deactivations,
			h.revocations, h.notifications, h.maintenanceRun, h.maintenanceAff,
		)
	}

	return h
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case ShareCreated:
		h.sharesCreated.Inc()
	case ShareAccessed:
		h.accesses.WithLabelValues(string(e.AccessType)).Inc()
	case ShareAccessDenied:
		h.denials.WithLabelValues(string(e.Reason)).Inc()
	case ShareDeactivated:
		h.deactivations.WithLabelValues(string(e.Reason)).Inc()
	case ShareRevoked:
		h.revocations.Inc()
	case NotificationSent:
		h.notifications.WithLabelValues("delivered").Inc()
	case NotificationFailed:
		h.notifications.WithLabelValues("failed").Inc()
	case SweepCompleted:
		h.maintenanceRun.WithLabelValues(e.Job).Inc()
		h.maintenanceAff.WithLabelValues(e.Job).Add(float64(e.Affected))
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameShareCreated,
		NameShareAccessed,
		NameShareAccessDenied,
		NameShareDeactivated,
		NameShareRevoked,
		NameNotificationSent,
		NameNotificationFailed,
		NameSweepCompleted,
	}
}
