package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dvloznov/align/internal/app"
	"github.com/dvloznov/align/internal/config"
	"github.com/dvloznov/align/internal/logger"
	"github.com/dvloznov/align/internal/scheduler"
)

// The worker runs scheduled syncs without the HTTP API. Events still go out
// through the configured publishers.
func main() {
	var (
		configPath = flag.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file (or set ALIGN_CONFIG env)")
		runNow     = flag.Bool("run-now", false, "Enqueue one sync immediately on start")
	)
	flag.Parse()

	_ = godotenv.Load()

	boot := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	if cfg.Sync.Schedule == "" && !*runNow {
		log.Fatal().Msg("Nothing to do: set SYNC_SCHEDULE or pass -run-now")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	log.Info().Msg("Starting worker service")

	// Start consuming jobs
	if err := a.Queue.Start(ctx, a.Workflow.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	sched := scheduler.New(ctx, a.Queue, logger.Component(log, "scheduler"))
	if err := sched.RegisterSync(cfg.Sync.Schedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sync schedule")
	}
	sched.Start()

	if *runNow {
		sched.RunSyncNow()
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	sched.Stop()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel context to stop workers
	cancel()

	// Stop the queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
