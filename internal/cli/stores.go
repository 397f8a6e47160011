package cli

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/config"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/store"
	"github.com/roach88/mestouches/internal/tracker"
)

// offline is the context shared by commands that work on store files
// without a capture session.
type offline struct {
	cfg    *config.Config
	logger *slog.Logger
	diag   *diag.Log
	out    *OutputFormatter
}

func (o *RootOptions) offline(cmd *cobra.Command) (*offline, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), o.Verbose, cfg.Log)
	return &offline{
		cfg:    cfg,
		logger: logger,
		diag:   diag.New(diag.WithLogger(logger)),
		out:    o.formatter(cmd),
	}, nil
}

func (c *offline) path(k codec.Kind) string {
	return filepath.Join(c.cfg.DataDir, store.FileName(k))
}

func (c *offline) open(k codec.Kind, strict bool) (tracker.Durable, error) {
	return tracker.OpenStore(k, c.path(k), store.Options{
		Threshold: c.cfg.AutosaveEvery,
		Strict:    strict,
		Diag:      c.diag,
		Logger:    c.logger,
	})
}

func (c *offline) kinds(args []string) ([]codec.Kind, error) {
	if len(args) == 0 || args[0] == "all" {
		return codec.Kinds, nil
	}
	k, err := codec.ParseKind(args[0])
	if err != nil {
		return nil, c.out.Fail(ExitCommandError, CodeBadArgument, "invalid store kind", err)
	}
	return []codec.Kind{k}, nil
}

// StoreResult reports the outcome of an offline store command.
type StoreResult struct {
	Store   string `json:"store"`
	Path    string `json:"path"`
	Removed int    `json:"removed,omitempty"`
}
