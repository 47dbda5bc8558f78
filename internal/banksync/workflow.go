// Package banksync runs the simulated open-finance sync: pull a raw batch,
// categorize it, commit it to the ledger and, when one new spend is large
// enough, draft a Harmony alert.
package banksync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/ai"
	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/domain"
	"github.com/dvloznov/align/internal/events"
)

// UnknownSpender names the owner of a transaction whose user is not found.
const UnknownSpender = "Alguém"

// Config tunes a Workflow.
type Config struct {
	// Latency is the simulated bank round trip.
	Latency time.Duration
	// AlertThreshold is the amount a new spend must strictly exceed to
	// trigger an alert.
	AlertThreshold decimal.Decimal
	// IncomeLimitRatio times the couple's income is the soft limit quoted
	// in the alert. It does not gate the alert.
	IncomeLimitRatio decimal.Decimal
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Latency:          2 * time.Second,
		AlertThreshold:   decimal.NewFromInt(200),
		IncomeLimitRatio: decimal.RequireFromString("0.1"),
	}
}

// Alert is the alert raised by a run.
type Alert struct {
	Message       string
	Fallback      ai.FallbackReason
	TransactionID string
}

// Result summarizes a completed run.
type Result struct {
	RunID        string
	Transactions []domain.Transaction
	Defaulted    int
	Alert        *Alert
	Duration     time.Duration
}

// Workflow is the sync state machine driver. It is safe to call Run
// concurrently; the store admits one run at a time.
type Workflow struct {
	store       *dashboard.Store
	feed        Feed
	categorizer ai.Categorizer
	drafter     ai.AlertDrafter
	owner       OwnerAssigner
	publisher   events.Publisher
	cfg         Config
	log         zerolog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithOwnerAssigner replaces the random owner policy.
func WithOwnerAssigner(o OwnerAssigner) Option {
	return func(w *Workflow) { w.owner = o }
}

// WithPublisher sets where sync events go.
func WithPublisher(p events.Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

// NewWorkflow wires a sync workflow.
func NewWorkflow(store *dashboard.Store, feed Feed, categorizer ai.Categorizer, drafter ai.AlertDrafter, cfg Config, log zerolog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		store:       store,
		feed:        feed,
		categorizer: categorizer,
		drafter:     drafter,
		owner:       RandomOwner{},
		publisher:   events.Nop{},
		cfg:         cfg,
		log:         log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) newTransaction() domain.Transaction {
	return domain.Transaction{ID: w.store.NewID(), Date: w.store.Today()}
}

// Run performs one sync. It returns dashboard.ErrSyncInProgress without side
// effects when another run holds the store. Collaborator failures never fail
// a run; only cancellation or a feed error do, and then the ledger is left
// untouched.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	if err := w.store.BeginSync(); err != nil {
		return nil, err
	}

	run := &RunState{
		RunID:     w.store.NewID(),
		StartedAt: time.Now(),
		Users:     w.store.Snapshot().Users,
	}
	log := w.log.With().Str("run_id", run.RunID).Logger()
	log.Info().Msg("Bank sync started")

	runner := NewRunner(
		&LatencyStep{Delay: w.cfg.Latency},
		&FetchStep{Feed: w.feed},
		&CategorizeStep{Categorizer: w.categorizer, Owner: w.owner, NewTransaction: w.newTransaction},
		&CommitStep{Store: w.store},
	)

	if err := runner.Execute(ctx, run); err != nil {
		if !run.Committed {
			w.store.AbortSync()
		}
		log.Error().Err(err).Msg("Bank sync aborted")
		w.publish(ctx, log, events.NewSyncFailed(run.RunID, time.Now(), err))
		return nil, fmt.Errorf("banksync: %w", err)
	}

	res := &Result{
		RunID:        run.RunID,
		Transactions: run.Batch,
		Defaulted:    run.Defaulted,
		Duration:     time.Since(run.StartedAt),
	}

	log.Info().
		Int("new_transactions", len(run.Batch)).
		Int("defaulted_categories", run.Defaulted).
		Dur("duration", res.Duration).
		Msg("Bank sync committed")

	w.publish(ctx, log, events.NewSyncCompleted(run.RunID, time.Now(), events.SyncCompleted{
		Transactions: run.Batch,
		Defaulted:    run.Defaulted,
		Duration:     res.Duration,
	}))

	res.Alert = w.evaluateAlert(ctx, log, run)
	return res, nil
}

// LargestSpend returns the batch entry with the greatest amount. The first
// one wins a tie.
func LargestSpend(batch []domain.Transaction) (domain.Transaction, bool) {
	if len(batch) == 0 {
		return domain.Transaction{}, false
	}
	largest := batch[0]
	for _, tx := range batch[1:] {
		if tx.Amount.GreaterThan(largest.Amount) {
			largest = tx
		}
	}
	return largest, true
}

// evaluateAlert drafts an alert for the largest new spend if it strictly
// exceeds the threshold. The previous alert is kept otherwise.
func (w *Workflow) evaluateAlert(ctx context.Context, log zerolog.Logger, run *RunState) *Alert {
	largest, ok := LargestSpend(run.Batch)
	if !ok || !largest.Amount.GreaterThan(w.cfg.AlertThreshold) {
		return nil
	}

	w.store.BeginAlert(run.RunID)

	state := w.store.Snapshot()
	spender := UnknownSpender
	if u, found := state.User(largest.UserID); found {
		spender = u.Name
	}
	limit := domain.TotalIncome(state.Users).Mul(w.cfg.IncomeLimitRatio)

	req := ai.AlertRequest{
		SpenderName: spender,
		Category:    largest.Category,
		Amount:      largest.Amount,
		Limit:       limit,
	}
	drafted := w.drafter.DraftAlert(ctx, req)
	if err := w.store.PublishAlert(run.RunID, drafted.Message); err != nil {
		log.Info().Err(err).Str("transaction_id", largest.ID).Msg("Harmony alert dropped, a newer run is drafting")
		return nil
	}

	log.Info().
		Str("transaction_id", largest.ID).
		Str("amount", largest.Amount.StringFixed(2)).
		Str("limit", limit.StringFixed(2)).
		Str("fallback", string(drafted.Fallback)).
		Msg("Harmony alert raised")

	w.publish(ctx, log, events.NewHarmonyAlert(run.RunID, time.Now(), events.HarmonyAlert{
		Message:       drafted.Message,
		SpenderName:   spender,
		Category:      largest.Category,
		Amount:        largest.Amount,
		Limit:         limit,
		TransactionID: largest.ID,
		Fallback:      string(drafted.Fallback),
	}))

	return &Alert{Message: drafted.Message, Fallback: drafted.Fallback, TransactionID: largest.ID}
}

func (w *Workflow) publish(ctx context.Context, log zerolog.Logger, e events.Event) {
	if err := w.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("Failed to publish event")
	}
}
