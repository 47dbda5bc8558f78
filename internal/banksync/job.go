package banksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/jobs"
)

// HandleJob runs a sync for a queued SyncJob and records the outcome on it.
// A busy store is a permanent failure: the run already in flight serves the
// request.
func (w *Workflow) HandleJob(ctx context.Context, job jobs.Job) error {
	syncJob, ok := job.(*jobs.SyncJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
	}

	log := w.log.With().Str("job_id", syncJob.JobID).Str("trigger", string(syncJob.Trigger)).Logger()
	log.Info().Msg("Processing sync job")

	res, err := w.Run(ctx)
	if err != nil {
		if errors.Is(err, dashboard.ErrSyncInProgress) {
			return jobs.Permanent(err)
		}
		return err
	}

	syncJob.RunID = res.RunID
	syncJob.NewTransactions = len(res.Transactions)
	syncJob.DefaultedCategories = res.Defaulted
	if res.Alert != nil {
		syncJob.AlertRaised = true
		syncJob.AlertMessage = res.Alert.Message
	}

	log.Info().Str("run_id", res.RunID).Int("new_transactions", len(res.Transactions)).Msg("Sync job completed")
	return nil
}

var _ jobs.JobHandler = (*Workflow)(nil).HandleJob
