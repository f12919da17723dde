package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/prevail/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and validate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		Long: `Show prints the configuration after defaults, the --config file,
PREVAIL_* environment variables and flags have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(configView(rootOpts.Config))
			}
			data, err := rootOpts.Config.Marshal()
			if err != nil {
				return failure(CodeInternal, "failed to render config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a YAML config file",
		Long: `Validate parses a config file over the defaults and checks it against
the configuration schema. Without an argument the --config file is used.

Exit codes:
  0 - configuration is valid
  1 - configuration is invalid
  2 - command error (no file given, unreadable file)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return usageError("no config file given")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return &ExitError{Exit: ExitCommandError, Code: CodeInvalidConfig, Message: "failed to read config file", Details: path, Err: err}
			}

			cfg := config.Default()
			if err := parseAndValidate(data, &cfg); err != nil {
				return &ExitError{Exit: ExitFailure, Code: CodeInvalidConfig, Message: "invalid config", Details: path, Err: err}
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(map[string]string{"file": path, "status": "valid"})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
			return nil
		},
	})
	return cmd
}

func parseAndValidate(data []byte, cfg *config.Config) error {
	if err := config.Parse(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func configView(cfg config.Config) map[string]any {
	return map[string]any{
		"data_dir":   cfg.DataDir,
		"serializer": cfg.Serializer,
		"snapshot": map[string]any{
			"interval": cfg.Snapshot.Interval.String(),
			"retain":   cfg.Snapshot.Retain,
		},
		"search": map[string]any{
			"enabled":    cfg.Search.Enabled,
			"batch_size": cfg.Search.BatchSize,
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	}
}
