package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bazarlink/courier/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "courier",
	Short:   "BazarLink courier orchestration service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the courier API server",
	RunE:  runServe,
}

var syncAreasCmd = &cobra.Command{
	Use:   "sync-areas",
	Short: "Refresh the serviceable-area index from provider coverage APIs",
	RunE:  runSyncAreas,
}

var syncAreasProvider string

func init() {
	syncAreasCmd.Flags().StringVar(&syncAreasProvider, "provider", "", "sync a single provider slug")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncAreasCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.AreaSyncEnabled {
		if err := app.syncJob.Start(); err != nil {
			return err
		}
		defer app.syncJob.Stop()
	}

	logger.Info("Starting BazarLink courier service",
		zap.Int("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("version", cfg.Version),
	)

	srv := server.New(
		server.Config{Port: cfg.Port, Environment: app.env},
		app.store,
		app.registry,
		app.selector,
		app.dispatcher,
		app.ingestor,
		app.tokens,
		app.syncJob,
		logger,
		app.metrics,
	)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runSyncAreas(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	slugs := []string{syncAreasProvider}
	if syncAreasProvider == "" {
		providers, err := app.store.ListProviders(ctx, true)
		if err != nil {
			return err
		}
		slugs = slugs[:0]
		for _, p := range providers {
			slugs = append(slugs, p.Slug)
		}
	}

	var failed bool
	for _, slug := range slugs {
		n, err := app.syncJob.SyncProvider(ctx, slug)
		if err != nil {
			failed = true
			logger.Error("Area sync failed", zap.String("provider", slug), zap.Error(err))
			continue
		}
		logger.Info("Area sync completed", zap.String("provider", slug), zap.Int("areas", n))
	}
	if failed {
		return fmt.Errorf("area sync finished with errors")
	}
	return nil
}
