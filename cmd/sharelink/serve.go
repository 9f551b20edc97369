package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/adapter/jwtauth"
	"github.com/vertextoedge/sharelink/internal/logger"
	"github.com/vertextoedge/sharelink/internal/service/server"
)

const tempFileMaxAge = 24 * time.Hour

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the maintenance loop",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log.Info("starting sharelink",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("storage", cfg.Storage.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.local != nil {
		if n, err := a.local.CleanOldTempFiles(tempFileMaxAge); err != nil {
			log.Warn("failed to clean temp files", zap.Error(err))
		} else if n > 0 {
			log.Info("cleaned stale temp files", zap.Int("count", n))
		}
	}

	var auth server.Authenticator
	if cfg.Auth.JWTSecret != "" {
		verifier, err := jwtauth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.GetLeeway())
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		auth = verifier
	}

	httpServer, err := server.New(&server.Config{
		BindAddr:             cfg.HTTP.BindAddr,
		BaseURL:              cfg.HTTP.BaseURL,
		AdminUsername:        cfg.Admin.Username,
		AdminPassword:        cfg.Admin.Password,
		TrustProxy:           cfg.HTTP.TrustProxy,
		ReadTimeout:          cfg.HTTP.GetReadTimeout(),
		WriteTimeout:         cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:          cfg.HTTP.GetIdleTimeout(),
		AdminTriggerInterval: cfg.Admin.GetTriggerInterval(),
		PublicRateInterval:   cfg.HTTP.GetPublicRateInterval(),
		PublicRateBurst:      cfg.HTTP.PublicRateBurst,
	}, server.Deps{
		Store:       a.store,
		Sharing:     a.sharing,
		Notifier:    a.notifier,
		Maintenance: a.maintenance,
		Auth:        auth,
		Registerer:  a.registry,
		Gatherer:    a.registry,
	}, log.Named("http"))
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	go func() {
		if err := a.maintenance.Start(ctx); err != nil && err != context.Canceled {
			log.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("application started successfully", zap.String("http_addr", cfg.HTTP.BindAddr))

	select {
	case <-sigChan:
		log.Info("shutdown signal received, stopping services...")
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	a.maintenance.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	log.Info("application stopped successfully")
	return nil
}
