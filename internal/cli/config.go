package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
		Long: `Manage config.yaml. The file is validated against an embedded schema;
missing keys take their defaults and unknown keys are rejected.

Example:
  mestouches config init
  mestouches config validate ./config.yaml`,
	}

	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

// ConfigResult reports a config file operation.
type ConfigResult struct {
	Path   string         `json:"path"`
	Action string         `json:"action"`
	Config *config.Config `json:"config,omitempty"`
}

// WriteText implements textWriter.
func (r ConfigResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", r.Action, r.Path)
	if err != nil || r.Config == nil {
		return err
	}
	fmt.Fprintf(w, "  data_dir:       %s\n", r.Config.DataDir)
	fmt.Fprintf(w, "  autosave_every: %d\n", r.Config.AutosaveEvery)
	fmt.Fprintf(w, "  relay:          %v\n", r.Config.Relay.Enabled)
	_, err = fmt.Fprintf(w, "  listen:         %s\n", r.Config.Listen)
	return err
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "init",
		Short:         "Write the default configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			path, _, err := rootOpts.configPath()
			if err != nil {
				return out.Fail(ExitCommandError, CodeBadArgument, "failed to locate config", err)
			}
			if err := config.WriteDefault(path); err != nil {
				if errors.Is(err, fs.ErrExist) {
					return out.Fail(ExitCommandError, CodeBadArgument, "config file already exists", err)
				}
				return out.Fail(ExitFailure, CodeSave, "failed to write config", err)
			}
			return out.Success(ConfigResult{Path: path, Action: "created"})
		},
	}
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate [file]",
		Short:         "Check a configuration file against the schema",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			path, _, err := rootOpts.configPath()
			if err != nil {
				return out.Fail(ExitCommandError, CodeBadArgument, "failed to locate config", err)
			}
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				if errors.Is(err, config.ErrInvalid) {
					return out.Fail(ExitFailure, CodeLoad, "config is invalid", err)
				}
				return out.Fail(ExitCommandError, CodeLoad, "failed to read config", err)
			}
			return out.Success(ConfigResult{Path: path, Action: "valid", Config: cfg})
		},
	}
}
