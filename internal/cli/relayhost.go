package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/capture"
	"github.com/roach88/mestouches/internal/relay"
)

// RelayHostOptions holds flags for the relay-host command.
type RelayHostOptions struct {
	*RootOptions
	Replay string
}

// NewRelayHostCommand creates the relay-host command.
func NewRelayHostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayHostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay-host",
		Short: "Forward window lifecycle events to running aggregators",
		Long: `Install the window lifecycle hook in this process and forward every
created and destroyed window through the relay channel named by
relay.endpoint. Aggregators started with relay.enabled pick the records up.

When the host stops, it wakes every listening aggregator so they drain
what is left in the channel.

Example:
  mestouches relay-host
  mestouches relay-host --replay ./windows.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelayHost(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Replay, "replay", "", "JSON-lines script whose window steps are forwarded")

	return cmd
}

// RelayHostResult reports what a host forwarded.
type RelayHostResult struct {
	Endpoint string `json:"endpoint"`
	Sent     int    `json:"sent"`
	Dropped  int    `json:"dropped"`
}

// WriteText implements textWriter.
func (r RelayHostResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "relay %s: %d sent, %d dropped\n", r.Endpoint, r.Sent, r.Dropped)
	return err
}

func runRelayHost(opts *RelayHostOptions, cmd *cobra.Command) error {
	c, err := opts.offline(cmd)
	if err != nil {
		return err
	}

	ro := relay.Options{
		Name:     c.cfg.Relay.Endpoint,
		Dir:      c.cfg.DataDir,
		WordSize: c.cfg.Relay.WordSize,
	}
	if err := ro.Validate(); err != nil {
		return c.out.Fail(ExitCommandError, CodeBadArgument, "invalid relay settings", err)
	}

	script := opts.Replay
	if script == "" {
		script = c.cfg.Capture.Replay
	}
	var src capture.WindowSource
	if script != "" {
		rs, err := capture.OpenReplay(script)
		if err != nil {
			return c.out.Fail(ExitCommandError, CodeBadArgument, "failed to read replay script", err)
		}
		src = rs
	} else {
		ws, err := capture.NativeWindowSource()
		if errors.Is(err, capture.ErrUnsupported) {
			return c.out.Fail(ExitFailure, CodeRelay, "no native window hook on this platform; use --replay", err)
		}
		if err != nil {
			return c.out.Fail(ExitFailure, CodeRelay, "failed to install window hook", err)
		}
		src = ws
	}

	host := relay.NewHost(
		func() (relay.Writer, error) { return relay.Dial(ro) },
		relay.NewWaker(ro),
		relay.WithWakeTimeout(c.cfg.Relay.Wake()),
		relay.WithHostDiag(c.diag),
		relay.WithHostLogger(c.logger),
	)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	c.logger.Info("relay host started", "endpoint", ro.Name)
	runErr := host.Run(ctx, src)
	sent, dropped := host.Counts()
	if runErr != nil {
		return c.out.Fail(ExitFailure, CodeRelay, "relay host failed", runErr)
	}

	name := ro.Name
	if name == "" {
		name = relay.DefaultName
	}
	return c.out.Success(RelayHostResult{Endpoint: name, Sent: sent, Dropped: dropped})
}
