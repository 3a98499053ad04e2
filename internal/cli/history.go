package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	Limit   int
}

// runView is the JSON form of a journaled run.
type runView struct {
	RunID       string         `json:"run_id"`
	State       string         `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	DryRun      bool           `json:"dry_run"`
	Source      string         `json:"source,omitempty"`
	Destination string         `json:"destination,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	Summary     map[string]int `json:"summary,omitempty"`

	Outcomes []executor.Outcome `json:"outcomes,omitempty"`
}

func viewOf(run journal.Run) runView {
	v := runView{
		RunID:       run.ID,
		State:       runState(run),
		StartedAt:   run.StartedAt,
		DryRun:      run.DryRun,
		Source:      run.Source,
		Destination: run.Destination,
		Options:     run.Options,
		Summary:     run.Summary,
	}
	if run.Finished() {
		finished := run.FinishedAt
		v.FinishedAt = &finished
	}
	return v
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled migration runs",
		Long: `List the runs recorded in a journal, newest first, or show the
outcomes of one run.

The journal defaults to defaults.journal from --config.

Exit codes:
  0 - Success
  2 - Command error (no journal, unknown run)

Examples:
  cfgmigrate history --journal runs.db
  cfgmigrate history 0190f3c2-... --journal runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(cmd, opts, runID)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal to read")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, runID string) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	path := opts.Journal
	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return out.Fail(ExitCommandError, CodeConfig, "invalid config", err)
		}
		path = cfg.Defaults.Journal
	}
	if path == "" {
		return out.Fail(ExitCommandError, CodeUsage, "no journal: use --journal or set defaults.journal in --config", nil)
	}

	j, err := journal.Open(path)
	if err != nil {
		return out.Fail(ExitCommandError, CodeJournal, "open journal", err)
	}
	defer j.Close()

	if runID == "" {
		runs, err := j.ListRuns(ctx, opts.Limit)
		if err != nil {
			return out.Fail(ExitCommandError, CodeJournal, "list runs", err)
		}
		if out.JSON() {
			views := make([]runView, len(runs))
			for i, r := range runs {
				views[i] = viewOf(r)
			}
			return out.Success(views)
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	}

	run, err := j.GetRun(ctx, runID)
	if errors.Is(err, journal.ErrRunNotFound) {
		return out.Fail(ExitCommandError, CodeRunNotFound, "run not found", err)
	}
	if err != nil {
		return out.Fail(ExitCommandError, CodeJournal, "read run", err)
	}
	outcomes, err := j.ReadOutcomes(ctx, runID)
	if err != nil {
		return out.Fail(ExitCommandError, CodeJournal, "read outcomes", err)
	}
	if out.JSON() {
		v := viewOf(run)
		v.Outcomes = outcomes
		return out.Success(v)
	}
	renderRun(cmd.OutOrStdout(), run, outcomes, palette{noColor: opts.NoColor})
	return nil
}
