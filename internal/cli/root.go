package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "table" | "json"
	Config  string
	NoColor bool

	// Process seams, replaced in tests.
	Getenv    func(string) string
	NewClient ClientFactory
	In        io.Reader

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"table", "json"}

// NewRootCommand creates the root command for the cfgmigrate CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		Getenv:    os.Getenv,
		NewClient: NewHTTPClient,
		In:        os.Stdin,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfgmigrate",
		Short: "cfgmigrate - copy detection configuration between instances",
		Long: `Copy detection configuration (actions, lists, exclusions, feeds, rules and
their attachments) from one platform instance to another.

Objects are matched by identity, planned in dependency order, and written
with references rewritten to destination IDs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "table", "output format (table|json)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "configuration file (.cue, .yaml or .json)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRegionsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	// Usage mistakes exit with ExitCommandError.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})
	for _, sub := range cmd.Commands() {
		if validate := sub.Args; validate != nil {
			sub.Args = func(c *cobra.Command, args []string) error {
				if err := validate(c, args); err != nil {
					return WrapExitError(ExitCommandError, "invalid arguments", err)
				}
				return nil
			}
		}
	}

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// loadConfig loads --config, or returns an empty Config when unset.
func (o *RootOptions) loadConfig() (*Config, error) {
	if o.Config == "" {
		return &Config{}, nil
	}
	return LoadConfig(o.Config)
}

func (o *RootOptions) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}
