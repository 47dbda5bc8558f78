package banksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/align/internal/ai"
	"github.com/dvloznov/align/internal/domain"
)

// SyncStep is one stage of a sync run.
type SyncStep interface {
	Execute(ctx context.Context, run *RunState) error
}

// RunState is shared across the steps of one run.
type RunState struct {
	RunID     string
	StartedAt time.Time
	Users     []domain.User
	Records   []domain.BankRecord
	Batch     []domain.Transaction
	Defaulted int
	Committed bool
}

// Runner executes steps in order, stopping at the first failure.
type Runner struct {
	steps []SyncStep
}

// NewRunner creates a runner with the given steps.
func NewRunner(steps ...SyncStep) *Runner {
	return &Runner{steps: steps}
}

// Execute runs all steps sequentially.
func (r *Runner) Execute(ctx context.Context, run *RunState) error {
	for i, step := range r.steps {
		if err := step.Execute(ctx, run); err != nil {
			return fmt.Errorf("sync step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// LatencyStep simulates the open-finance round trip.
type LatencyStep struct {
	Delay time.Duration
}

func (s *LatencyStep) Execute(ctx context.Context, _ *RunState) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulated latency: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// FetchStep pulls the raw batch from the feed.
type FetchStep struct {
	Feed Feed
}

func (s *FetchStep) Execute(ctx context.Context, run *RunState) error {
	records, err := s.Feed.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch bank records: %w", err)
	}
	run.Records = records
	return nil
}

var errNoUsers = errors.New("no users to assign transactions to")

// CategorizeStep turns raw records into ledger transactions, one record at
// a time and in feed order.
type CategorizeStep struct {
	Categorizer    ai.Categorizer
	Owner          OwnerAssigner
	// NewTransaction returns a transaction with a fresh ID and today's date.
	NewTransaction func() domain.Transaction
}

func (s *CategorizeStep) Execute(ctx context.Context, run *RunState) error {
	if len(run.Records) == 0 {
		return nil
	}
	if len(run.Users) == 0 {
		return errNoUsers
	}

	batch := make([]domain.Transaction, 0, len(run.Records))
	for _, rec := range run.Records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("categorize: %w", err)
		}

		res := s.Categorizer.Categorize(ctx, rec.Description, rec.Amount)
		if res.Defaulted() {
			run.Defaulted++
		}

		tx := s.NewTransaction()
		tx.UserID = s.Owner.AssignOwner(run.Users, rec)
		tx.Description = rec.Description
		tx.Amount = rec.Amount
		tx.Type = domain.TransactionTypeExpense
		tx.Category = res.Category
		tx.Institution = rec.Institution
		batch = append(batch, tx)
	}
	run.Batch = batch
	return nil
}

// committer is the store surface CommitStep needs.
type committer interface {
	CompleteSync(batch []domain.Transaction)
}

// CommitStep prepends the batch to the ledger and clears the busy flag.
type CommitStep struct {
	Store committer
}

func (s *CommitStep) Execute(_ context.Context, run *RunState) error {
	s.Store.CompleteSync(run.Batch)
	run.Committed = true
	return nil
}
