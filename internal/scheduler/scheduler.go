package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/jobs"
)

// parser accepts both five-field and six-field (seconds) expressions plus
// descriptors such as "@every 15m".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler enqueues periodic sync jobs.
type Scheduler struct {
	cron      *cron.Cron
	publisher jobs.Publisher
	ctx       context.Context
	log       zerolog.Logger
	timeout   time.Duration
}

// New creates a Scheduler that publishes to publisher. ctx bounds every
// publish made from a tick.
func New(ctx context.Context, publisher jobs.Publisher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithParser(parser)),
		publisher: publisher,
		ctx:       ctx,
		log:       log,
		timeout:   5 * time.Second,
	}
}

// RegisterSync adds the automatic sync task. An empty schedule disables it.
func (s *Scheduler) RegisterSync(schedule string) error {
	if schedule == "" {
		s.log.Info().Msg("Automatic sync disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, s.syncTask); err != nil {
		return fmt.Errorf("register sync task: %w", err)
	}
	s.log.Info().Str("schedule", schedule).Msg("Automatic sync registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("entries", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunSyncNow executes the sync task immediately.
func (s *Scheduler) RunSyncNow() {
	s.syncTask()
}

func (s *Scheduler) syncTask() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	job := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	if err := s.publisher.PublishSync(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrSyncQueued) {
			s.log.Info().Msg("Sync already queued, skipping tick")
			return
		}
		s.log.Error().Err(err).Msg("Failed to enqueue scheduled sync")
		return
	}
	s.log.Info().Str("job_id", job.JobID).Msg("Scheduled sync enqueued")
}
