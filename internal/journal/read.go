package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
)

const runColumns = `run_id, started_at, finished_at, dry_run, cancelled, source, destination, options, summary`

// ListRuns returns the most recent runs first. A limit of zero returns all.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id COLLATE BINARY DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run or ErrRunNotFound.
func (j *Journal) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// ReadOutcomes returns a run's outcomes in plan order.
func (j *Journal) ReadOutcomes(ctx context.Context, runID string) ([]executor.Outcome, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT idx, kind, source_id, name, action, status, destination_id, placeholder, reason, attempts
		FROM outcomes
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := []executor.Outcome{}
	for rows.Next() {
		var (
			o                    executor.Outcome
			kind, action, status string
		)
		if err := rows.Scan(&o.Index, &kind, &o.Key.ID, &o.Ref.Name, &action, &status,
			&o.DestinationID, &o.Placeholder, &o.Reason, &o.Attempts); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Key.Kind = model.Kind(kind)
		o.Ref.Kind = o.Key.Kind
		o.Ref.ID = o.Key.ID
		o.Action = planner.Action(action)
		o.Status = executor.Status(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run                   Run
		started               string
		finished              sql.NullString
		optsJSON, summaryJSON string
	)
	if err := s.Scan(&run.ID, &started, &finished, &run.DryRun, &run.Cancelled,
		&run.Source, &run.Destination, &optsJSON, &summaryJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("run %s: parse finished_at: %w", run.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(optsJSON), &run.Options); err != nil {
		return Run{}, fmt.Errorf("run %s: decode options: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return Run{}, fmt.Errorf("run %s: decode summary: %w", run.ID, err)
	}
	return run, nil
}
