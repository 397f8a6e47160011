package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mestouches CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mestouches",
		Short: "mestouches - keyboard, pointer and window activity tracker",
		Long: `Capture keyboard, pointer and window lifecycle events and aggregate them
into three durable stores (keyboard.mto, mouse.mto, event.mto).

Window events may arrive from an isolated hook host process through the
relay channel. Store files are versioned binary files that older versions
of the tool can still produce; inspect and repair work on them offline.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config.yaml (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the store files")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewRelayHostCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// configPath returns the config file to read and whether it was named
// explicitly.
func (o *RootOptions) configPath() (string, bool, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, true, nil
	}
	dir := o.DataDir
	if dir == "" {
		d, err := config.DefaultDataDir()
		if err != nil {
			return "", false, err
		}
		dir = d
	}
	return filepath.Join(dir, config.FileName), false, nil
}

// loadConfig reads the configuration. A missing default file yields the
// schema defaults; a missing explicit file is an error. --data-dir
// overrides the file's data_dir. The returned path is empty when no file
// was read.
func (o *RootOptions) loadConfig() (*config.Config, string, error) {
	path, explicit, err := o.configPath()
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "failed to locate config", err)
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg, path = config.Default(), ""
	default:
		return nil, "", WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if cfg.DataDir == "" {
		dir, err := config.DefaultDataDir()
		if err != nil {
			return nil, "", WrapExitError(ExitCommandError, "failed to locate data directory", err)
		}
		cfg.DataDir = dir
	}
	return cfg, path, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
