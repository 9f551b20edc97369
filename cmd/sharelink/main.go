package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/adapter/filesystem"
	"github.com/vertextoedge/sharelink/internal/adapter/metacache"
	"github.com/vertextoedge/sharelink/internal/adapter/s3store"
	"github.com/vertextoedge/sharelink/internal/adapter/smtp"
	"github.com/vertextoedge/sharelink/internal/adapter/sqlite"
	"github.com/vertextoedge/sharelink/internal/config"
	"github.com/vertextoedge/sharelink/internal/domain/event"
	domainsvc "github.com/vertextoedge/sharelink/internal/domain/service"
	"github.com/vertextoedge/sharelink/internal/logger"
	"github.com/vertextoedge/sharelink/internal/port"
	"github.com/vertextoedge/sharelink/internal/service/maintenance"
	"github.com/vertextoedge/sharelink/internal/service/notifier"
	"github.com/vertextoedge/sharelink/internal/service/sharing"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sharelink",
		Short:         "Secure share links with expiry, access limits and audit logging",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (defaults and SHARELINK_* env when empty)")

	rootCmd.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newCleanupCmd(),
		newSuspiciousCmd(),
		newUsageCmd(),
		newTokenCmd(),
		newImportCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config flag and initializes the global logger
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetZapLogger(), nil
}

// app holds the wired components shared by every command
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	store       *sqlite.Store
	events      *event.InMemoryDispatcher
	files       port.FileStore
	local       *filesystem.Manager
	sharing     *sharing.Service
	notifier    *notifier.Service
	maintenance *maintenance.Service
}

// newApp opens the store and builds the services. async selects
// asynchronous event dispatch, used by the long running server.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, async bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := sqlite.Open(ctx, cfg.Database.Path, sqlite.Options{
		BusyTimeout:  cfg.Database.GetBusyTimeout(),
		QueryTimeout: cfg.Database.GetQueryTimeout(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Logger:       log.Named("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	a.store = store

	a.events = event.NewInMemoryDispatcher(async, log.Named("events"))
	a.events.Subscribe(event.NewLoggingHandler(log.Named("events")))
	a.events.Subscribe(event.NewMetricsHandler(a.registry))

	cache := metacache.New(cfg.Storage.MetadataCacheSize, cfg.Storage.GetMetadataCacheTTL(), cfg.Storage.Backend, a.registry)
	switch cfg.Storage.Backend {
	case "s3":
		files, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Prefix:       cfg.Storage.S3.Prefix,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			AccessKey:    cfg.Storage.S3.AccessKey,
			SecretKey:    cfg.Storage.S3.SecretKey,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		}, cache, log.Named("s3"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create s3 file store: %w", err)
		}
		a.files = files
	default:
		manager, err := filesystem.NewManager(cfg.Storage.Local.RootDir, cache)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
		}
		a.local = manager
		a.files = manager
	}

	clock := port.SystemClock{}

	a.sharing = sharing.New(&sharing.Config{
		Policy: domainsvc.PolicyConfig{
			MaxAccessCeiling: cfg.Share.MaxAccessCeiling,
			MaxLifetime:      cfg.Share.GetMaxLifetime(),
			DefaultLifetime:  cfg.Share.GetDefaultLifetime(),
			LogDeniedAccess:  cfg.Share.LogDeniedAccess,
		},
	}, store, a.files, clock, a.events, log.Named("sharing"))

	var retrier maintenance.NotificationRetrier
	if cfg.Notification.Enabled {
		sender := smtp.NewSender(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			UseTLS:   cfg.SMTP.UseTLS,
		})
		a.notifier = notifier.New(&notifier.Config{
			BaseURL:       cfg.HTTP.BaseURL,
			Subject:       cfg.Notification.Subject,
			SendTimeout:   cfg.Notification.GetSendTimeout(),
			MaxRecipients: cfg.Notification.MaxRecipients,
			MaxAttempts:   cfg.Notification.MaxAttempts,
		}, store, sender, a.files, clock, a.events, log.Named("notifier"))
		retrier = a.notifier
	}

	a.maintenance = maintenance.New(&maintenance.Config{
		SweepInterval:             cfg.Maintenance.GetSweepInterval(),
		CleanupInterval:           cfg.Maintenance.GetCleanupInterval(),
		NotificationRetryInterval: cfg.Maintenance.GetNotificationRetryInterval(),
		NotificationRetryMaxAge:   cfg.Maintenance.GetNotificationRetryMaxAge(),
		RetentionDays:             cfg.Maintenance.RetentionDays,
		AncillaryRetention:        cfg.Maintenance.GetAncillaryRetention(),
		SuspiciousWindow:          cfg.Analytics.GetSuspiciousWindow(),
		SuspiciousThreshold:       cfg.Analytics.SuspiciousThreshold,
		CountDenials:              cfg.Analytics.CountDenials,
		MaxQueryLatency:           cfg.Analytics.GetMaxQueryLatency(),
		MaxSuspiciousIPs:          cfg.Analytics.MaxSuspiciousIPs,
	}, store, retrier, clock, a.events, log.Named("maintenance"))

	return a, nil
}

// Close flushes pending events and closes the store
func (a *app) Close() {
	a.events.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
