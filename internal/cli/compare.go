package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cfgmigrate/internal/graph"
	"github.com/roach88/cfgmigrate/internal/migrate"
	"github.com/roach88/cfgmigrate/internal/model"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions

	Skip          []string
	IncludeSystem bool

	Source      endpointFlags
	Destination endpointFlags
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{
		RootOptions: rootOpts,
		Source:      endpointFlags{side: "source", envVar: EnvSourceAPIKey},
		Destination: endpointFlags{side: "dest", envVar: EnvDestAPIKey},
	}

	cmd := &cobra.Command{
		Use:   "compare [kind|all]",
		Short: "Compare configuration between two instances",
		Long: `Snapshot both instances and report, per kind, which objects are missing
from the destination, which exist only there, and which differ.

Objects are matched the same way migrate matches them. Nothing is written.

Exit codes:
  0 - Comparison finished (differences do not change the exit code)
  2 - Command error (bad flags, invalid config, snapshot failure)

Examples:
  cfgmigrate compare
  cfgmigrate compare rules --format json
  cfgmigrate compare all --skip feeds,exclusions`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kindArg := "all"
			if len(args) == 1 {
				kindArg = args[0]
			}
			return runCompare(cmd.Context(), cmd, opts, kindArg)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVar(&opts.Skip, "skip", nil, "kinds to leave out (repeatable)")
	fs.BoolVar(&opts.IncludeSystem, "include-system", false, "also compare platform-owned objects")
	opts.Source.register(fs)
	opts.Destination.register(fs)

	return cmd
}

func runCompare(ctx context.Context, cmd *cobra.Command, opts *CompareOptions, kindArg string) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid config", err)
	}
	if !cmd.Flags().Changed("skip") && len(cfg.Defaults.Skip) > 0 {
		opts.Skip = cfg.Defaults.Skip
	}

	kinds, err := parseKindArg(kindArg)
	if err != nil {
		return out.Fail(ExitCommandError, CodeUsage, "invalid arguments", err)
	}
	skip, err := model.ParseKinds(opts.Skip)
	if err != nil {
		return out.Fail(ExitCommandError, CodeUsage, "invalid arguments", fmt.Errorf("--skip: %w", err))
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
	out.VerboseLog("Comparing %s with %s", srcEP.Label(), destEP.Label())
	c, err := m.Compare(ctx, migrate.Options{
		Kinds:         kinds,
		SkipKinds:     skip,
		IncludeSystem: opts.IncludeSystem,
	})
	if err != nil {
		var ge *graph.GraphError
		if errors.As(err, &ge) {
			return out.Fail(ExitCommandError, CodeCycle, "cannot order the selected objects", err)
		}
		return out.Fail(ExitCommandError, CodeSnapshot, "snapshot failed", err)
	}

	if out.JSON() {
		return out.Success(c)
	}
	renderComparison(cmd.OutOrStdout(), c, palette{noColor: opts.NoColor})
	return nil
}
