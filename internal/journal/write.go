package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
)

// Run is the journal entry of one migration run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	DryRun      bool
	Cancelled   bool
	Source      string
	Destination string
	// Options are the run's effective options, stored as canonical JSON.
	Options map[string]any
	// Summary counts outcomes per status once the run finished.
	Summary map[string]int
}

// Finished reports whether FinishRun was recorded.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

const timeLayout = time.RFC3339Nano

// BeginRun records the start of a run. Recording the same run ID twice is
// a no-op.
func (j *Journal) BeginRun(ctx context.Context, run Run) error {
	opts, err := model.MarshalCanonical(orEmpty(run.Options))
	if err != nil {
		return fmt.Errorf("begin run: marshal options: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, dry_run, source, destination, options)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.DryRun,
		run.Source,
		run.Destination,
		string(opts),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordOutcome appends one step outcome. Each (run, index) is written at
// most once; later writes for the same step are ignored.
func (j *Journal) RecordOutcome(ctx context.Context, runID string, o executor.Outcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(run_id, idx, kind, source_id, name, action, status, destination_id, placeholder, reason, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		runID,
		o.Index,
		string(o.Key.Kind),
		o.Key.ID,
		o.Ref.Name,
		string(o.Action),
		string(o.Status),
		o.DestinationID,
		o.Placeholder,
		o.Reason,
		o.Attempts,
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.Key, err)
	}
	return nil
}

// FinishRun stores the end time, cancellation flag and status counts of a
// report.
func (j *Journal) FinishRun(ctx context.Context, report *executor.Report) error {
	summary := map[string]any{}
	for status, n := range report.Summary() {
		summary[string(status)] = n
	}
	data, err := model.MarshalCanonical(summary)
	if err != nil {
		return fmt.Errorf("finish run: marshal summary: %w", err)
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, cancelled = ?, summary = ?
		WHERE run_id = ?
	`,
		report.FinishedAt.UTC().Format(timeLayout),
		report.Cancelled,
		string(data),
		report.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", report.RunID, ErrRunNotFound)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
