package store

import (
	"sort"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
)

var sessionsCodec = kindCodec[codec.Sessions]{
	kind:   codec.KindSessions,
	decode: codec.DecodeSessions,
	encode: codec.EncodeSessions,
	empty:  func() *codec.Sessions { return &codec.Sessions{} },
	clone:  (*codec.Sessions).Clone,
}

// Usage is a total time attributed to one name.
type Usage struct {
	Name  string `json:"name"`
	Total uint64 `json:"total_us"`
}

// SubjectUsage is one subject's total with its documents, each sorted by
// time descending.
type SubjectUsage struct {
	Subject   string  `json:"subject"`
	Total     uint64  `json:"total_us"`
	Documents []Usage `json:"documents"`
}

// Sessions is the durable window-session log.
type Sessions struct {
	base[codec.Sessions]

	subjects  []SubjectUsage
	documents []Usage
}

// LoadSessions decodes the sessions file at path. Failures are recorded in
// opts.Diag.
func LoadSessions(path string, opts Options) (*codec.Sessions, error) {
	return load(sessionsCodec, path, opts.Strict, opts.Diag)
}

// OpenSessions creates the store and attempts to load path.
func OpenSessions(path string, opts Options) *Sessions {
	s := &Sessions{}
	s.init(sessionsCodec, path, opts)
	s.open()
	return s
}

// NewSessions creates an available, empty store that has not been saved.
func NewSessions(path string, opts Options) *Sessions {
	s := &Sessions{}
	s.init(sessionsCodec, path, opts)
	s.state = sessionsCodec.empty()
	return s
}

// Append adds one session, blocking on the store lock.
func (s *Sessions) Append(u record.SessionUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ErrUnavailable
	}
	s.state.Entries = append(s.state.Entries, u)
	s.modified()
	return nil
}

// TryAppend adds sessions only if the store lock is free. It reports
// whether they were merged; on false nothing was taken.
func (s *Sessions) TryAppend(usages []record.SessionUsage) (bool, error) {
	if !s.mu.TryLock() {
		return false, nil
	}
	defer s.mu.Unlock()
	if s.state == nil {
		return false, ErrUnavailable
	}
	s.appendLocked(usages)
	return true, nil
}

// AppendAll adds sessions, blocking on the store lock.
func (s *Sessions) AppendAll(usages []record.SessionUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ErrUnavailable
	}
	s.appendLocked(usages)
	return nil
}

func (s *Sessions) appendLocked(usages []record.SessionUsage) {
	for _, u := range usages {
		s.state.Entries = append(s.state.Entries, u)
		s.modified()
	}
}

// Repair drops sessions that started before the first session. It returns
// the number of entries removed.
func (s *Sessions) Repair() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0, ErrUnavailable
	}
	entries := s.state.Entries
	if len(entries) == 0 {
		return 0, nil
	}
	first := entries[0].Start
	kept := entries[:0]
	for _, e := range entries {
		if e.Start >= first {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.state.Entries = kept
	s.modified()
	return removed, nil
}

// Subjects returns per-subject totals, largest first, each with its
// documents largest first.
func (s *Sessions) Subjects() []SubjectUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	if s.dirty {
		s.rebuild()
	}
	out := make([]SubjectUsage, len(s.subjects))
	for i, su := range s.subjects {
		out[i] = su
		out[i].Documents = append([]Usage(nil), su.Documents...)
	}
	return out
}

// Documents returns per-document totals across every subject, largest
// first.
func (s *Sessions) Documents() []Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	if s.dirty {
		s.rebuild()
	}
	return append([]Usage(nil), s.documents...)
}

// rebuild must be called with mu held.
func (s *Sessions) rebuild() {
	subjectTotals := map[string]uint64{}
	documentTotals := map[string]uint64{}
	perSubject := map[string]map[string]uint64{}

	for _, e := range s.state.Entries {
		d := e.Duration()
		subjectTotals[e.Subject] += d
		documentTotals[e.Document] += d
		docs := perSubject[e.Subject]
		if docs == nil {
			docs = map[string]uint64{}
			perSubject[e.Subject] = docs
		}
		docs[e.Document] += d
	}

	s.subjects = s.subjects[:0]
	for name, total := range subjectTotals {
		s.subjects = append(s.subjects, SubjectUsage{
			Subject:   name,
			Total:     total,
			Documents: rank(perSubject[name]),
		})
	}
	sort.Slice(s.subjects, func(i, j int) bool {
		a, b := s.subjects[i], s.subjects[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Subject < b.Subject
	})
	s.documents = rank(documentTotals)
	s.dirty = false
}

func rank(totals map[string]uint64) []Usage {
	out := make([]Usage, 0, len(totals))
	for name, total := range totals {
		out = append(out, Usage{Name: name, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}
