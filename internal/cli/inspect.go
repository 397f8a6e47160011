package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
)

// topN bounds the ranked lists printed by inspect.
const topN = 10

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Strict bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a store file and print a summary",
		Long: `Identify a store file by its signature, decode it with the reader for its
version and print a summary. Any readable version is accepted; older
versions are reported as such.

Without --strict a file shorter than its declared contents is decoded as
far as whole records go and reported as truncated.

Example:
  mestouches inspect ~/.config/mestouches/keyboard.mto
  mestouches inspect --strict --format json mouse.mto`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on any size shortfall")

	return cmd
}

// InspectResult summarizes one store file.
type InspectResult struct {
	File      string            `json:"file"`
	Kind      string            `json:"kind"`
	Version   uint8             `json:"version"`
	Current   bool              `json:"current"`
	Size      int               `json:"size"`
	Truncated bool              `json:"truncated"`
	Keystream *KeystreamSummary `json:"keystream,omitempty"`
	Pointer   *PointerSummary   `json:"pointer,omitempty"`
	Sessions  *SessionsSummary  `json:"sessions,omitempty"`
}

// KeystreamSummary is the keystream part of an InspectResult.
type KeystreamSummary struct {
	Events int        `json:"events"`
	First  uint64     `json:"first"`
	Last   uint64     `json:"last"`
	Top    []KeyTotal `json:"top"`
}

// KeyTotal is one key code with its counter.
type KeyTotal struct {
	Code  uint8  `json:"code"`
	Count uint32 `json:"count"`
}

// PointerSummary is the pointer part of an InspectResult.
type PointerSummary struct {
	Clicks   int              `json:"clicks"`
	Buttons  []ButtonTotal    `json:"buttons"`
	Displays []DisplaySummary `json:"displays"`
}

// ButtonTotal is one button with its counter.
type ButtonTotal struct {
	Button string `json:"button"`
	Count  uint32 `json:"count"`
}

// DisplaySummary is one display of the history.
type DisplaySummary struct {
	Hash   string `json:"hash"`
	Name   string `json:"name"`
	X      uint32 `json:"x"`
	Y      uint32 `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Live   bool   `json:"live"`
}

// SessionsSummary is the sessions part of an InspectResult.
type SessionsSummary struct {
	Sessions int            `json:"sessions"`
	Top      []SubjectTotal `json:"top"`
}

// SubjectTotal is one subject with its summed session time.
type SubjectTotal struct {
	Subject string `json:"subject"`
	Total   uint64 `json:"total_us"`
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return out.Fail(ExitCommandError, CodeLoad, "failed to read store file", err)
	}
	res, err := inspect(filepath.Base(path), data, opts.Strict)
	if err != nil {
		return out.Fail(ExitFailure, CodeLoad, "failed to decode store file", err)
	}
	return out.Success(res)
}

// inspect decodes data and builds its summary.
func inspect(name string, data []byte, strict bool) (*InspectResult, error) {
	kind, version, err := codec.Sniff(data)
	if err != nil {
		return nil, err
	}
	res := &InspectResult{
		File:    name,
		Kind:    kind.String(),
		Version: version,
		Current: version == kind.CurrentVersion(),
		Size:    len(data),
	}

	decode := func(o codec.Options) error {
		switch kind {
		case codec.KindKeystream:
			k, err := codec.DecodeKeystream(data, o)
			if err == nil {
				res.Keystream = summarizeKeystream(k)
			}
			return err
		case codec.KindPointer:
			p, err := codec.DecodePointer(data, o)
			if err == nil {
				res.Pointer = summarizePointer(p)
			}
			return err
		default:
			s, err := codec.DecodeSessions(data, o)
			if err == nil {
				res.Sessions = summarizeSessions(s)
			}
			return err
		}
	}

	err = decode(codec.Options{Strict: true})
	switch {
	case err == nil:
	case strict || !codec.IsTruncated(err):
		return nil, err
	default:
		res.Truncated = true
		if err := decode(codec.Options{}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func summarizeKeystream(k *codec.Keystream) *KeystreamSummary {
	s := &KeystreamSummary{Events: len(k.Entries), Top: []KeyTotal{}}
	if n := len(k.Entries); n > 0 {
		s.First = k.Entries[0].Timestamp
		s.Last = k.Entries[n-1].Timestamp
	}
	for code, c := range k.Counters {
		if c > 0 {
			s.Top = append(s.Top, KeyTotal{Code: uint8(code), Count: c})
		}
	}
	sort.SliceStable(s.Top, func(i, j int) bool { return s.Top[i].Count > s.Top[j].Count })
	if len(s.Top) > topN {
		s.Top = s.Top[:topN]
	}
	return s
}

func summarizePointer(p *codec.Pointer) *PointerSummary {
	s := &PointerSummary{Clicks: len(p.Clicks), Buttons: []ButtonTotal{}, Displays: []DisplaySummary{}}
	for i, c := range p.Buttons {
		if c > 0 {
			s.Buttons = append(s.Buttons, ButtonTotal{Button: record.Button(i).String(), Count: c})
		}
	}
	sort.SliceStable(s.Buttons, func(i, j int) bool { return s.Buttons[i].Count > s.Buttons[j].Count })
	for _, d := range p.Displays {
		s.Displays = append(s.Displays, DisplaySummary{
			Hash:   d.Hash,
			Name:   d.Name,
			X:      d.X,
			Y:      d.Y,
			Width:  d.Width,
			Height: d.Height,
			Live:   d.Live(),
		})
	}
	return s
}

func summarizeSessions(ss *codec.Sessions) *SessionsSummary {
	s := &SessionsSummary{Sessions: len(ss.Entries), Top: []SubjectTotal{}}
	totals := map[string]uint64{}
	for _, e := range ss.Entries {
		totals[e.Subject] += e.Duration()
	}
	for subject, total := range totals {
		s.Top = append(s.Top, SubjectTotal{Subject: subject, Total: total})
	}
	sort.Slice(s.Top, func(i, j int) bool {
		if s.Top[i].Total != s.Top[j].Total {
			return s.Top[i].Total > s.Top[j].Total
		}
		return s.Top[i].Subject < s.Top[j].Subject
	})
	if len(s.Top) > topN {
		s.Top = s.Top[:topN]
	}
	return s
}

// WriteText renders the summary for humans.
func (r *InspectResult) WriteText(w io.Writer) error {
	status := "current"
	if !r.Current {
		status = "legacy"
	}
	fmt.Fprintf(w, "file:      %s\n", r.File)
	fmt.Fprintf(w, "kind:      %s\n", r.Kind)
	fmt.Fprintf(w, "version:   %d (%s)\n", r.Version, status)
	fmt.Fprintf(w, "size:      %d bytes\n", r.Size)
	if r.Truncated {
		fmt.Fprintln(w, "truncated: yes, whole records only")
	}

	switch {
	case r.Keystream != nil:
		k := r.Keystream
		fmt.Fprintf(w, "events:    %d\n", k.Events)
		if k.Events > 0 {
			fmt.Fprintf(w, "first:     %d\n", k.First)
			fmt.Fprintf(w, "last:      %d\n", k.Last)
		}
		if len(k.Top) > 0 {
			fmt.Fprintln(w, "top keys:")
			for _, t := range k.Top {
				fmt.Fprintf(w, "  %3d  %d\n", t.Code, t.Count)
			}
		}
	case r.Pointer != nil:
		p := r.Pointer
		fmt.Fprintf(w, "clicks:    %d\n", p.Clicks)
		if len(p.Buttons) > 0 {
			fmt.Fprintln(w, "buttons:")
			for _, b := range p.Buttons {
				fmt.Fprintf(w, "  %-10s  %d\n", b.Button, b.Count)
			}
		}
		if len(p.Displays) > 0 {
			fmt.Fprintln(w, "displays:")
			for _, d := range p.Displays {
				state := "gone"
				if d.Live {
					state = "live"
				}
				fmt.Fprintf(w, "  %s %q %dx%d at %d,%d (%s)\n", d.Hash, d.Name, d.Width, d.Height, d.X, d.Y, state)
			}
		}
	case r.Sessions != nil:
		s := r.Sessions
		fmt.Fprintf(w, "sessions:  %d\n", s.Sessions)
		if len(s.Top) > 0 {
			fmt.Fprintln(w, "top subjects:")
			for _, t := range s.Top {
				fmt.Fprintf(w, "  %-24s  %dus\n", t.Subject, t.Total)
			}
		}
	}
	return nil
}
