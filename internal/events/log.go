package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes every event to a zerolog logger.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	evt := p.log.Info().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Str("run_id", e.RunID)

	switch {
	case e.SyncCompleted != nil:
		evt = evt.
			Int("new_transactions", len(e.SyncCompleted.Transactions)).
			Int("defaulted_categories", e.SyncCompleted.Defaulted).
			Dur("duration", e.SyncCompleted.Duration)
	case e.SyncFailed != nil:
		evt = evt.Str("error", e.SyncFailed.Error)
	case e.HarmonyAlert != nil:
		evt = evt.
			Str("spender", e.HarmonyAlert.SpenderName).
			Str("category", string(e.HarmonyAlert.Category)).
			Str("amount", e.HarmonyAlert.Amount.StringFixed(2)).
			Str("alert", e.HarmonyAlert.Message)
	}

	evt.Msg("Dashboard event")
	return nil
}
