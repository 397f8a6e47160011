package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <keystream|pointer|sessions|all>",
		Short: "Drop out-of-order entries and rewrite in the newest layout",
		Long: `Load a store without strict size checks, remove every entry whose
timestamp precedes the first entry's timestamp, recompute the counters and
save the result in the newest file layout.

Files written by older versions are upgraded in place; a truncated file
keeps the whole records it still holds.

Example:
  mestouches repair keystream
  mestouches repair all --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(rootOpts, args, cmd)
		},
	}
	return cmd
}

// RepairResult lists the repaired stores.
type RepairResult struct {
	Stores []StoreResult `json:"stores"`
}

// WriteText implements textWriter.
func (r RepairResult) WriteText(w io.Writer) error {
	for _, s := range r.Stores {
		fmt.Fprintf(w, "repaired %s: %d entries removed (%s)\n", s.Store, s.Removed, s.Path)
	}
	return nil
}

func runRepair(opts *RootOptions, args []string, cmd *cobra.Command) error {
	c, err := opts.offline(cmd)
	if err != nil {
		return err
	}
	kinds, err := c.kinds(args)
	if err != nil {
		return err
	}

	res := RepairResult{}
	for _, k := range kinds {
		s, err := c.open(k, false)
		if err != nil {
			return c.out.Fail(ExitCommandError, CodeBadArgument, "invalid store kind", err)
		}
		if !s.Available() {
			detail := fmt.Errorf("%s could not be loaded; see the log or reset it", s.Path())
			if last, ok := c.diag.Last(); ok {
				detail = fmt.Errorf("%s: %s", s.Path(), last.Detail)
			}
			return c.out.Fail(ExitFailure, CodeLoad, "cannot repair "+k.String(), detail)
		}
		removed, err := s.Repair()
		if err != nil {
			return c.out.Fail(ExitFailure, CodeLoad, "failed to repair "+k.String(), err)
		}
		if err := s.Save(); err != nil {
			return c.out.Fail(ExitFailure, CodeSave, "failed to save "+k.String(), err)
		}
		c.out.VerboseLog("%s: removed %d entries", k, removed)
		res.Stores = append(res.Stores, StoreResult{Store: k.String(), Path: s.Path(), Removed: removed})
	}
	return c.out.Success(res)
}
