// Package app wires the dashboard, sync workflow, job queue and outbound
// integrations from configuration. The binaries under cmd/ share it.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/ai"
	"github.com/dvloznov/align/internal/banksync"
	"github.com/dvloznov/align/internal/config"
	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/events"
	"github.com/dvloznov/align/internal/export"
	"github.com/dvloznov/align/internal/jobs/inmemory"
	"github.com/dvloznov/align/internal/logger"
	"github.com/dvloznov/align/internal/seed"
)

// App holds the wired components.
type App struct {
	Config      *config.Config
	Store       *dashboard.Store
	Categorizer ai.Categorizer
	Drafter     ai.AlertDrafter
	Events      events.Publisher
	Workflow    *banksync.Workflow
	JobStore    *inmemory.Store
	Queue       *inmemory.Queue
	Exporter    *export.Exporter

	closers []io.Closer
	log     zerolog.Logger
}

// New builds every component. Optional integrations that fail to start are
// logged and left out; only a bad seed is fatal.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	data, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	a.Store = dashboard.NewStore(dashboard.FromSeed(data))

	a.Categorizer, a.Drafter = a.buildAI(ctx)
	a.Events = a.buildEvents()

	a.Workflow = banksync.NewWorkflow(
		a.Store,
		banksync.NewStaticFeed(data.BankFeed),
		a.Categorizer,
		a.Drafter,
		banksync.Config{
			Latency:          cfg.Sync.Latency,
			AlertThreshold:   cfg.Sync.AlertThreshold,
			IncomeLimitRatio: cfg.Sync.IncomeLimitRatio,
		},
		logger.Component(log, "banksync"),
		banksync.WithPublisher(a.Events),
	)

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(a.JobStore, inmemory.Options{
		BufferSize: cfg.Sync.QueueSize,
		Workers:    1,
		MaxRetries: cfg.Sync.MaxRetries,
		Logger:     logger.Component(log, "jobs"),
	})

	a.Exporter = export.NewExporter(logger.Component(log, "export"), a.buildSinks(ctx)...)

	return a, nil
}

func (a *App) buildAI(ctx context.Context) (ai.Categorizer, ai.AlertDrafter) {
	log := logger.Component(a.log, "ai")
	if !a.Config.GeminiEnabled() {
		log.Info().Msg("No Gemini API key configured, using offline categorizer")
		return ai.NewKeywordCategorizer(), ai.TemplateAlertDrafter{}
	}

	client, err := ai.NewGeminiClient(ctx, a.Config.Gemini.APIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini unavailable, using offline categorizer")
		return ai.NewKeywordCategorizer(), ai.TemplateAlertDrafter{}
	}

	opts := ai.GeminiOptions{Model: a.Config.Gemini.Model, Timeout: a.Config.Gemini.Timeout}
	log.Info().Str("model", opts.Model).Msg("Using Gemini")
	return ai.NewGeminiCategorizer(client.Models, opts, log), ai.NewGeminiAlertDrafter(client.Models, opts, log)
}

func (a *App) buildEvents() events.Publisher {
	log := logger.Component(a.log, "events")
	pubs := events.Multi{events.NewLogPublisher(log)}

	if a.Config.AMQP.URL != "" {
		p, err := events.DialAMQP(a.Config.AMQP.URL, a.Config.AMQP.Exchange, a.Config.AMQP.RoutingKey, log)
		if err != nil {
			log.Warn().Err(err).Msg("AMQP publisher disabled")
		} else {
			pubs = append(pubs, p)
			a.closers = append(a.closers, p)
		}
	}

	if a.Config.DiscordEnabled() {
		n, err := events.NewDiscordNotifier(a.Config.Discord.BotToken, a.Config.Discord.ChannelID, log)
		if err != nil {
			log.Warn().Err(err).Msg("Discord notifier disabled")
		} else {
			pubs = append(pubs, n)
		}
	}

	return pubs
}

func (a *App) buildSinks(ctx context.Context) []export.Sink {
	cfg := a.Config.Export
	log := logger.Component(a.log, "export")
	var sinks []export.Sink

	if cfg.GCSBucket != "" {
		s, err := export.NewGCSSink(ctx, cfg.GCSBucket, cfg.GCSPrefix, log)
		if err != nil {
			log.Warn().Err(err).Msg("GCS export disabled")
		} else {
			sinks = append(sinks, s)
			a.closers = append(a.closers, s)
		}
	}

	if cfg.BigQueryProject != "" {
		s, err := export.NewBigQuerySink(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable, log)
		if err != nil {
			log.Warn().Err(err).Msg("BigQuery export disabled")
		} else {
			sinks = append(sinks, s)
			a.closers = append(a.closers, s)
		}
	}

	if cfg.NotionToken != "" && cfg.NotionTasksDB != "" {
		sinks = append(sinks, export.NewNotionSink(export.NewNotionClient(cfg.NotionToken), cfg.NotionTasksDB, log))
	}

	return sinks
}

// Close releases integration clients.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
