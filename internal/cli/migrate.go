package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/graph"
	"github.com/roach88/cfgmigrate/internal/journal"
	"github.com/roach88/cfgmigrate/internal/migrate"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions

	IncludeIDs     []string
	ExcludeIDs     []string
	Skip           []string
	UpdateExisting bool
	DryRun         bool
	Yes            bool
	Workers        int
	RetryAttempts  int
	IncludeSystem  bool
	Journal        string

	Source      endpointFlags
	Destination endpointFlags
}

// migrateResult is the JSON payload of a migrate run.
type migrateResult struct {
	RunID   string           `json:"run_id"`
	DryRun  bool             `json:"dry_run"`
	Plan    *planner.Plan    `json:"plan"`
	Report  *executor.Report `json:"report,omitempty"`
	Summary executor.Summary `json:"summary,omitempty"`
	Planned planner.Summary  `json:"planned"`
	Applied bool             `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{
		RootOptions: rootOpts,
		Source:      endpointFlags{side: "source", envVar: EnvSourceAPIKey},
		Destination: endpointFlags{side: "dest", envVar: EnvDestAPIKey},
	}

	cmd := &cobra.Command{
		Use:   "migrate <kind|all>",
		Short: "Migrate configuration to the destination instance",
		Long: `Snapshot both instances, plan the migration and apply it.

The kind selects what to migrate; dependencies of selected objects are
always pulled in. Kinds: action, list, exclusion, feed, rule, rule_action,
rule_exclusion, or all.

The plan is shown before anything is written and must be confirmed unless
--yes or --dry-run is given. With --format json, --yes is required for a
live run.

Exit codes:
  0 - Every step was created, updated or skipped
  1 - A step failed, was blocked or conflicted, or the run was interrupted
  2 - Command error (bad flags, invalid config, cycle, snapshot failure)

Examples:
  cfgmigrate migrate all --dry-run
  cfgmigrate migrate rules --include-ids 1f0c... --yes
  cfgmigrate migrate all --skip feeds --update-existing
  cfgmigrate migrate all --config migrate.cue --format json --yes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd, opts, args[0])
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVar(&opts.IncludeIDs, "include-ids", nil, "only migrate these source IDs or kind/id keys (and their dependencies)")
	fs.StringSliceVar(&opts.ExcludeIDs, "exclude-ids", nil, "do not migrate these source IDs or kind/id keys")
	fs.StringSliceVar(&opts.Skip, "skip", nil, "kinds to leave out (repeatable)")
	fs.BoolVar(&opts.UpdateExisting, "update-existing", false, "update destination objects whose fields differ")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "plan and report without writing")
	fs.BoolVarP(&opts.Yes, "yes", "y", false, "apply without asking for confirmation")
	fs.IntVar(&opts.Workers, "workers", executor.DefaultWorkers, "concurrent writes")
	fs.IntVar(&opts.RetryAttempts, "retry-attempts", executor.DefaultRetry.Attempts, "attempts per write on transient errors")
	fs.BoolVar(&opts.IncludeSystem, "include-system", false, "also migrate platform-owned objects")
	fs.StringVar(&opts.Journal, "journal", "", "record the run in this SQLite journal")
	opts.Source.register(fs)
	opts.Destination.register(fs)

	return cmd
}

// applyDefaults fills flags the user did not set from the config file.
func (o *MigrateOptions) applyDefaults(cmd *cobra.Command, d Defaults) {
	changed := cmd.Flags().Changed
	if !changed("workers") && d.Workers > 0 {
		o.Workers = d.Workers
	}
	if !changed("retry-attempts") && d.RetryAttempts > 0 {
		o.RetryAttempts = d.RetryAttempts
	}
	if !changed("update-existing") && d.UpdateExisting {
		o.UpdateExisting = true
	}
	if !changed("include-system") && d.IncludeSystem {
		o.IncludeSystem = true
	}
	if !changed("journal") && d.Journal != "" {
		o.Journal = d.Journal
	}
	if !changed("skip") && len(d.Skip) > 0 {
		o.Skip = d.Skip
	}
}

// options converts flags to migrate.Options.
func (o *MigrateOptions) options(kindArg string) (migrate.Options, error) {
	kinds, err := parseKindArg(kindArg)
	if err != nil {
		return migrate.Options{}, err
	}
	skip, err := model.ParseKinds(o.Skip)
	if err != nil {
		return migrate.Options{}, fmt.Errorf("--skip: %w", err)
	}
	if o.Workers < 1 {
		return migrate.Options{}, fmt.Errorf("--workers must be at least 1, got %d", o.Workers)
	}
	if o.RetryAttempts < 1 {
		return migrate.Options{}, fmt.Errorf("--retry-attempts must be at least 1, got %d", o.RetryAttempts)
	}

	retry := executor.DefaultRetry
	retry.Attempts = o.RetryAttempts
	return migrate.Options{
		Kinds:          kinds,
		IncludeIDs:     o.IncludeIDs,
		ExcludeIDs:     o.ExcludeIDs,
		SkipKinds:      skip,
		UpdateExisting: o.UpdateExisting,
		DryRun:         o.DryRun,
		IncludeSystem:  o.IncludeSystem,
		Workers:        o.Workers,
		Retry:          retry,
	}, nil
}

// parseKindArg reads a kind argument; "all" selects every kind.
func parseKindArg(arg string) ([]model.Kind, error) {
	if strings.EqualFold(arg, "all") {
		return nil, nil
	}
	k, err := model.ParseKind(arg)
	if err != nil {
		return nil, err
	}
	return []model.Kind{k}, nil
}

func runMigrate(ctx context.Context, cmd *cobra.Command, opts *MigrateOptions, kindArg string) error {
	out := opts.formatter(cmd)
	pal := palette{noColor: opts.NoColor}
	w := cmd.OutOrStdout()

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid config", err)
	}
	opts.applyDefaults(cmd, cfg.Defaults)

	mopts, err := opts.options(kindArg)
	if err != nil {
		return out.Fail(ExitCommandError, CodeUsage, "invalid arguments", err)
	}
	if out.JSON() && !opts.DryRun && !opts.Yes {
		return out.Fail(ExitCommandError, CodeUsage, "--format json needs --yes or --dry-run", nil)
	}

	src, srcEP, err := opts.connect(out, &opts.Source, cfg.Source, "source")
	if err != nil {
		return err
	}
	dest, destEP, err := opts.connect(out, &opts.Destination, cfg.Destination, "destination")
	if err != nil {
		return err
	}

	m := &migrate.Migrator{
		Source:          src,
		Destination:     dest,
		SourceName:      srcEP.Label(),
		DestinationName: destEP.Label(),
		Logger:          opts.log(),
	}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return out.Fail(ExitCommandError, CodeJournal, "open journal", err)
		}
		defer j.Close()
		m.Journal = j
	}

	out.VerboseLog("Snapshotting %s and %s", srcEP.Label(), destEP.Label())
	prepared, err := m.Prepare(ctx, mopts)
	if err != nil {
		var ge *graph.GraphError
		if errors.As(err, &ge) {
			return out.Fail(ExitCommandError, CodeCycle, "cannot order the selected objects", err)
		}
		return out.Fail(ExitCommandError, CodeSnapshot, "snapshot failed", err)
	}

	result := migrateResult{
		RunID:   prepared.RunID,
		DryRun:  mopts.DryRun,
		Plan:    prepared.Plan,
		Planned: prepared.Plan.Summary(),
	}

	if !out.JSON() {
		renderPlan(w, prepared.Plan, pal)
		fmt.Fprintln(w)
	}

	if !opts.DryRun && !opts.Yes && prepared.Plan.HasWork() {
		ok, err := confirm(cmd, opts, prepared.Plan, destEP.Label())
		if err != nil {
			return out.Fail(ExitCommandError, CodeNotConfirmed, "read confirmation", err)
		}
		if !ok {
			fmt.Fprintln(w, "Aborted; nothing was written.")
			return nil
		}
	}

	report, err := m.Apply(ctx, prepared)
	if report == nil {
		return out.Fail(ExitCommandError, CodeGeneric, "apply failed", err)
	}
	result.Report = report
	result.Summary = report.Summary()
	result.Applied = !report.DryRun

	if !out.JSON() {
		renderReport(w, report, pal)
	}

	switch {
	case report.Cancelled:
		return out.Partial(ExitFailure, CodeInterrupted, "run interrupted", result)
	case !report.Clean():
		s := result.Summary
		msg := fmt.Sprintf("%d failed, %d blocked, %d conflicted",
			s[executor.StatusFailed], s[executor.StatusFailedBlocked], s[executor.StatusConflict])
		return out.Partial(ExitFailure, CodeRunFailed, msg, result)
	}
	if out.JSON() {
		return out.Success(result)
	}
	return nil
}

// confirm asks on the input stream whether to apply the plan.
func confirm(cmd *cobra.Command, opts *MigrateOptions, plan *planner.Plan, dest string) (bool, error) {
	s := plan.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "Apply %d creates and %d updates to %s? [y/N]: ",
		s[planner.ActionCreate], s[planner.ActionUpdate], dest)

	in := opts.In
	if in == nil {
		in = cmd.InOrStdin()
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		// EOF without an answer declines.
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(cmd.OutOrStdout())
			return false, nil
		}
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
