// Package export pushes one-way copies of the dashboard to external systems.
// Nothing written by a sink is ever read back into the dashboard.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/align/internal/dashboard"
)

// Snapshot is the state handed to every sink in one export.
type Snapshot struct {
	ExportedAt time.Time
	State      dashboard.State
}

// Sink writes a snapshot somewhere outside the process.
type Sink interface {
	Name() string
	Export(ctx context.Context, snap Snapshot) error
}

// SinkResult is the outcome of a single sink.
type SinkResult struct {
	Sink     string        `json:"sink"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report summarises one export across all sinks.
type Report struct {
	ExportedAt time.Time    `json:"exported_at"`
	Results    []SinkResult `json:"results"`
}

// Exporter fans a snapshot out to every configured sink concurrently.
type Exporter struct {
	sinks []Sink
	now   func() time.Time
	log   zerolog.Logger
}

// NewExporter creates an Exporter. Nil sinks are skipped so callers can pass
// optional sinks unconditionally.
func NewExporter(log zerolog.Logger, sinks ...Sink) *Exporter {
	e := &Exporter{now: time.Now, log: log}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	return e
}

// Enabled reports whether at least one sink is configured.
func (e *Exporter) Enabled() bool {
	return len(e.sinks) > 0
}

// Sinks returns the names of the configured sinks.
func (e *Exporter) Sinks() []string {
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Export runs every sink against state. A failing sink does not stop the
// others; all failures are joined into the returned error.
func (e *Exporter) Export(ctx context.Context, state dashboard.State) (*Report, error) {
	snap := Snapshot{ExportedAt: e.now().UTC(), State: state}
	report := &Report{
		ExportedAt: snap.ExportedAt,
		Results:    make([]SinkResult, len(e.sinks)),
	}

	// The group only fans out. Sink errors go into the report instead of
	// g.Wait, so one failing sink neither cancels nor hides the others.
	var g errgroup.Group
	for i, sink := range e.sinks {
		g.Go(func() error {
			start := time.Now()
			err := sink.Export(ctx, snap)

			res := SinkResult{Sink: sink.Name(), OK: err == nil, Duration: time.Since(start)}
			if err != nil {
				res.Error = err.Error()
				e.log.Warn().Err(err).Str("sink", sink.Name()).Msg("Export sink failed")
			} else {
				e.log.Info().Str("sink", sink.Name()).Dur("duration", res.Duration).Msg("Export sink completed")
			}
			report.Results[i] = res
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, res := range report.Results {
		if !res.OK {
			errs = append(errs, fmt.Errorf("%s: %s", res.Sink, res.Error))
		}
	}
	if len(errs) > 0 {
		return report, fmt.Errorf("export: %w", errors.Join(errs...))
	}
	return report, nil
}
