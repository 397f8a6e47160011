package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/export"
	"github.com/roach88/mestouches/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Source   string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an SQLite snapshot of the stores",
		Long: `Load the three store files and append one snapshot of them to an SQLite
database (created if it doesn't exist). Each export gets its own snapshot
ID, so one database can hold a history of exports. Stores that cannot be
loaded are recorded as absent.

Example:
  mestouches export --db ./mestouches.db
  sqlite3 ./mestouches.db 'SELECT subject, SUM(end_ts - start_ts) FROM sessions GROUP BY subject'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "label stored with the snapshot (default: the data directory)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// ExportResult reports one written snapshot.
type ExportResult struct {
	Snapshot  string   `json:"snapshot"`
	Database  string   `json:"database"`
	Stores    []string `json:"stores"`
	Missing   []string `json:"missing"`
	KeyEvents int      `json:"key_events"`
	Clicks    int      `json:"clicks"`
	Displays  int      `json:"displays"`
	Sessions  int      `json:"sessions"`
}

// WriteText implements textWriter.
func (r ExportResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "snapshot %s written to %s\n", r.Snapshot, r.Database)
	fmt.Fprintf(w, "  key events: %d\n", r.KeyEvents)
	fmt.Fprintf(w, "  clicks:     %d\n", r.Clicks)
	fmt.Fprintf(w, "  displays:   %d\n", r.Displays)
	fmt.Fprintf(w, "  sessions:   %d\n", r.Sessions)
	for _, m := range r.Missing {
		fmt.Fprintf(w, "  %s: not loaded\n", m)
	}
	return nil
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	c, err := opts.offline(cmd)
	if err != nil {
		return err
	}

	lopts := store.Options{Diag: c.diag, Logger: c.logger}
	snap := export.Snapshot{Source: opts.Source, TakenAt: time.Now()}
	if snap.Source == "" {
		snap.Source = c.cfg.DataDir
	}
	res := ExportResult{Database: opts.Database, Stores: []string{}, Missing: []string{}}

	track := func(k codec.Kind, err error) {
		if err != nil {
			c.out.VerboseLog("%s: %v", k, err)
			res.Missing = append(res.Missing, k.String())
			return
		}
		res.Stores = append(res.Stores, k.String())
	}

	k, err := store.LoadKeystream(c.path(codec.KindKeystream), lopts)
	snap.Keystream = k
	track(codec.KindKeystream, err)

	lopts.Strict = c.cfg.StrictPointerLoad
	p, err := store.LoadPointer(c.path(codec.KindPointer), lopts)
	snap.Pointer = p
	track(codec.KindPointer, err)

	lopts.Strict = false
	s, err := store.LoadSessions(c.path(codec.KindSessions), lopts)
	snap.Sessions = s
	track(codec.KindSessions, err)

	db, err := export.Open(opts.Database)
	if err != nil {
		return c.out.Fail(ExitCommandError, CodeExport, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			c.logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	id, counts, err := db.WriteSnapshot(ctx, snap)
	if err != nil {
		return c.out.Fail(ExitFailure, CodeExport, "failed to write snapshot", err)
	}

	res.Snapshot = id
	res.KeyEvents = counts.KeyEvents
	res.Clicks = counts.Clicks
	res.Displays = counts.Displays
	res.Sessions = counts.Sessions
	return c.out.Success(res)
}
