package capture

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Privacy drops window sessions whose subject matches an exclusion glob.
// Patterns are matched case-insensitively against both the full subject
// (with backslashes turned into slashes) and its base name, so
// "keepass.exe" and "*/private/*" both work.
//
// The pattern set can be swapped while hooks are running.
type Privacy struct {
	set atomic.Pointer[patternSet]
}

type patternSet struct {
	patterns []string
	globs    []glob.Glob
}

// NewPrivacy compiles patterns.
func NewPrivacy(patterns []string) (*Privacy, error) {
	p := &Privacy{}
	if err := p.Update(patterns); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the pattern set. On error the previous set stays active.
func (p *Privacy) Update(patterns []string) error {
	set := &patternSet{}
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid exclusion pattern %q: %w", raw, err)
		}
		set.patterns = append(set.patterns, pattern)
		set.globs = append(set.globs, g)
	}
	p.set.Store(set)
	return nil
}

// Patterns returns the active patterns.
func (p *Privacy) Patterns() []string {
	if p == nil {
		return nil
	}
	set := p.set.Load()
	if set == nil {
		return nil
	}
	return append([]string(nil), set.patterns...)
}

// Excluded reports whether subject matches any pattern. A nil Privacy
// excludes nothing.
func (p *Privacy) Excluded(subject string) bool {
	if p == nil {
		return false
	}
	set := p.set.Load()
	if set == nil || len(set.globs) == 0 {
		return false
	}
	full := strings.ToLower(strings.ReplaceAll(subject, `\`, "/"))
	base := path.Base(full)
	for _, g := range set.globs {
		if g.Match(full) || g.Match(base) {
			return true
		}
	}
	return false
}
