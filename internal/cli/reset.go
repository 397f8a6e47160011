package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <keystream|pointer|sessions|all>",
		Short: "Wipe a store and write it back empty",
		Long: `Clear every entry and counter of a store and persist the empty store
immediately. This is also how an unavailable store (one whose file could
not be loaded) is made available again.

Do not reset a store while a capture session is writing to it.

Example:
  mestouches reset pointer
  mestouches reset all --data-dir /tmp/mt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(rootOpts, args, cmd)
		},
	}
	return cmd
}

// ResetResult lists the stores that were reset.
type ResetResult struct {
	Stores []StoreResult `json:"stores"`
}

// WriteText implements textWriter.
func (r ResetResult) WriteText(w io.Writer) error {
	for _, s := range r.Stores {
		fmt.Fprintf(w, "reset %s (%s)\n", s.Store, s.Path)
	}
	return nil
}

func runReset(opts *RootOptions, args []string, cmd *cobra.Command) error {
	c, err := opts.offline(cmd)
	if err != nil {
		return err
	}
	kinds, err := c.kinds(args)
	if err != nil {
		return err
	}

	res := ResetResult{}
	for _, k := range kinds {
		s, err := c.open(k, false)
		if err != nil {
			return c.out.Fail(ExitCommandError, CodeBadArgument, "invalid store kind", err)
		}
		if err := s.Reset(); err != nil {
			return c.out.Fail(ExitFailure, CodeSave, "failed to reset "+k.String(), err)
		}
		res.Stores = append(res.Stores, StoreResult{Store: k.String(), Path: s.Path()})
	}
	return c.out.Success(res)
}
