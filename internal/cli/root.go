package cli

import (
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/prevail/internal/config"
)

// RootOptions holds global flags for all commands and the configuration
// resolved before a subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the prevail CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prevail",
		Short: "prevail - in-memory prevalent object store",
		Long: `Operational tooling for a prevalent object store: inspect, verify and
compact the command journal, list snapshots, and check configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return &ExitError{Exit: ExitCommandError, Code: CodeInvalidConfig, Message: "failed to load config", Details: opts.ConfigPath, Err: err}
			}
			if err := config.ApplyFlags(cmd.Flags(), &cfg); err != nil {
				return &ExitError{Exit: ExitCommandError, Code: CodeUsage, Message: "invalid flags", Err: err}
			}
			logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return &ExitError{Exit: ExitCommandError, Code: CodeInvalidConfig, Message: "invalid log settings", Err: err}
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Exit: ExitCommandError, Code: CodeUsage, Message: "invalid flags", Err: err}
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
