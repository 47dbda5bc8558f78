// Package events fans dashboard domain events out to the log, a message
// broker and chat. Delivery is best effort: callers log publish errors and
// carry on.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

// Type names an event kind. It doubles as the AMQP message type.
type Type string

const (
	TypeSyncCompleted Type = "sync.completed"
	TypeSyncFailed    Type = "sync.failed"
	TypeHarmonyAlert  Type = "harmony.alert"
)

// Event is one published occurrence. Exactly one payload is set, matching Type.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RunID      string    `json:"run_id,omitempty"`

	SyncCompleted *SyncCompleted `json:"sync_completed,omitempty"`
	SyncFailed    *SyncFailed    `json:"sync_failed,omitempty"`
	HarmonyAlert  *HarmonyAlert  `json:"harmony_alert,omitempty"`
}

// SyncCompleted describes a committed sync batch.
type SyncCompleted struct {
	Transactions []domain.Transaction `json:"transactions"`
	Defaulted    int                  `json:"defaulted_categories"`
	Duration     time.Duration        `json:"duration_ns"`
}

// SyncFailed describes a sync that aborted before commit.
type SyncFailed struct {
	Error string `json:"error"`
}

// HarmonyAlert describes a drafted conflict-avoidance alert.
type HarmonyAlert struct {
	Message       string          `json:"message"`
	SpenderName   string          `json:"spender_name"`
	Category      domain.Category `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Limit         decimal.Decimal `json:"limit"`
	TransactionID string          `json:"transaction_id"`
	Fallback      string          `json:"fallback,omitempty"`
}

func newEvent(t Type, runID string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: at.UTC(), RunID: runID}
}

// NewSyncCompleted builds a sync.completed event.
func NewSyncCompleted(runID string, at time.Time, p SyncCompleted) Event {
	e := newEvent(TypeSyncCompleted, runID, at)
	e.SyncCompleted = &p
	return e
}

// NewSyncFailed builds a sync.failed event.
func NewSyncFailed(runID string, at time.Time, err error) Event {
	e := newEvent(TypeSyncFailed, runID, at)
	e.SyncFailed = &SyncFailed{Error: err.Error()}
	return e
}

// NewHarmonyAlert builds a harmony.alert event.
func NewHarmonyAlert(runID string, at time.Time, p HarmonyAlert) Event {
	e := newEvent(TypeHarmonyAlert, runID, at)
	e.HarmonyAlert = &p
	return e
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher. One failing publisher does not stop the rest.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = Nop{}
	_ Publisher = Multi(nil)
	_ Publisher = PublisherFunc(nil)
)
