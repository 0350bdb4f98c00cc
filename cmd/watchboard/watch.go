package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/watchboard"
	"github.com/jpalmerr/watchboard/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// watchCmd keeps the local stores in sync with the service.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync with the service and serve the mirror",
	Long: `Start syncing checks and logs with the monitoring service.

Watchboard will:
  - Load configuration from the specified YAML file
  - Fetch all checks and logs from the service
  - Merge push notifications from the configured transport
  - Serve the mirror dashboard, if enabled

It runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  watchboard watch -c config.yaml
  watchboard watch --config /etc/watchboard/config.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.SlogLevel())
	logger.Info("config loaded",
		"service_url", cfg.ServiceURL,
		"push", cfg.Push.Transport,
		"mirror", cfg.Mirror.Enabled,
	)

	wb, err := watchboard.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create Watchboard: %w", err)
	}

	if cfg.Mirror.Enabled {
		logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", cfg.Mirror.Port))
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start syncing - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- wb.Start(ctx)
	}()

	// wait for the client to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("watchboard error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("watchboard error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
