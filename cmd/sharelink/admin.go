package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/logger"
)

// withApp loads configuration, wires the services and runs fn against them
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate expired and exhausted shares once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				expired, err := a.maintenance.SweepExpired(ctx)
				if err != nil {
					return fmt.Errorf("expired sweep failed: %w", err)
				}
				exhausted, err := a.maintenance.SweepExhausted(ctx)
				if err != nil {
					return fmt.Errorf("exhausted sweep failed: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{
					"expired":   expired,
					"exhausted": exhausted,
				})
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete access log rows older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retentionDays < 0 {
				return fmt.Errorf("--retention-days must not be negative")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.maintenance.CleanupLogs(ctx, retentionDays)
				if report != nil {
					if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
						return perr
					}
				}
				if err != nil {
					a.logger.Error("cleanup finished with errors", zap.Error(err))
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Days of access history to keep (0 = configured default)")
	return cmd
}

func newSuspiciousCmd() *cobra.Command {
	var (
		window    time.Duration
		threshold int64
	)
	cmd := &cobra.Command{
		Use:   "suspicious",
		Short: "List client IPs with excessive activity in the recent window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if window < 0 || threshold < 0 {
				return fmt.Errorf("--window and --threshold must not be negative")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.maintenance.DetectSuspicious(ctx, window, threshold)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Look-back window such as 1h (0 = configured default)")
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "Accesses per IP that flag it (0 = configured default)")
	return cmd
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print global usage counts and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.maintenance.UsageAnalytics(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}
