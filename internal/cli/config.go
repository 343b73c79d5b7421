package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dojo/internal/config"
	"github.com/roach88/dojo/internal/dojo"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))

	return cmd
}

// ConfigValidateResult is the JSON result of config validate.
type ConfigValidateResult struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Fields int    `json:"fields"`
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file without opening the database.

The file is decoded strictly and checked field by field. When it names a
validators file, the CUE predicates are compiled too.

Exit codes:
  0 - Configuration valid
  1 - Configuration invalid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, args[0], cmd)
		},
	}
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(path)
	if err == nil {
		err = dojo.CheckValidators(*cfg)
	}
	if err != nil {
		if outErr := f.Error("INVALID_CONFIG", err.Error(), map[string]string{"path": path}); outErr != nil {
			return WrapExitError(ExitCommandError, "failed to write output", outErr)
		}
		return &ExitError{Code: ExitFailure, Message: "invalid configuration", Err: err, Reported: true}
	}

	return f.Result(
		ConfigValidateResult{Path: path, Valid: true, Fields: len(cfg.Fields)},
		fmt.Sprintf("✓ %s is valid (%d fields)", path, len(cfg.Fields)),
	)
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration commands would run with: the defaults, overlaid
with --config and --db.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode configuration", err)
			}
			return f.Result(cfg, strings.TrimRight(string(data), "\n"))
		},
	}
}
