package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/align/internal/api/handlers"
	"github.com/dvloznov/align/internal/api/middleware"
	"github.com/dvloznov/align/internal/app"
	"github.com/dvloznov/align/internal/config"
	"github.com/dvloznov/align/internal/logger"
	"github.com/dvloznov/align/internal/scheduler"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("ALIGN_CONFIG"), "Path to YAML config file (or set ALIGN_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	boot := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if cfg.Server.APIToken == "" {
		log.Warn().Msg("No API token configured - API is open")
	}

	// Start worker in background to process sync jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting sync worker")
	if err := a.Queue.Start(workerCtx, a.Workflow.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync worker")
	}

	sched := scheduler.New(workerCtx, a.Queue, logger.Component(log, "scheduler"))
	if err := sched.RegisterSync(cfg.Sync.Schedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sync schedule")
	}
	sched.Start()

	// Initialize handlers
	mux := handlers.NewMux(handlers.Routes{
		Dashboard: handlers.NewDashboardHandler(a.Store, log),
		Sync:      handlers.NewSyncHandler(a.Store, a.Queue, log),
		Jobs:      handlers.NewJobsHandler(a.JobStore, log),
		Export:    handlers.NewExportHandler(a.Store, a.Exporter, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.Chain(mux, log, cfg.Server.APIToken),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Strs("export_sinks", a.Exporter.Sinks()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Cancel worker context
	cancelWorker()

	// Stop job queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
