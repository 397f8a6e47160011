package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mestouches/internal/server"
	"github.com/roach88/mestouches/internal/tracker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Listen string
	Replay string

	// TrackerOptions are appended to the tracker options (for testing).
	TrackerOptions []tracker.Option
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start capturing events",
		Long: `Start a capture session: install the hooks, run the consumer that merges
events into the stores, and (with relay.enabled) receive window lifecycle
events from a relay host.

On platforms without native hooks a replay script feeds the session; with
--replay the session stops once the script has been played.

Example:
  mestouches run
  mestouches run --listen 127.0.0.1:7077
  mestouches run --replay ./session.jsonl --data-dir /tmp/mt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address of the snapshot API (overrides config listen)")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "JSON-lines script to play instead of native hooks")

	return cmd
}

func runTracker(opts *RunOptions, cmd *cobra.Command) error {
	cfg, cfgPath, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose, cfg.Log)

	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	var topts []tracker.Option
	topts = append(topts, tracker.WithLogger(logger))
	if opts.Replay != "" {
		cfg.Capture.Replay = opts.Replay
		topts = append(topts, tracker.WithStopOnSourceEnd())
	}
	if cfgPath != "" {
		topts = append(topts, tracker.WithConfigWatch(cfgPath))
	}
	topts = append(topts, opts.TrackerOptions...)

	tr, err := tracker.New(cfg, topts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start capture session", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Capturing into %s (session %s).\n", tr.DataDir(), tr.SessionID())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := tr.Run(gctx)
		// A finished replay ends the whole session, listener included.
		cancel()
		return err
	})
	if cfg.Listen != "" {
		srv := server.New(tr, logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Listen)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "capture session failed", err)
	}
	logger.Info("capture session ended")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
