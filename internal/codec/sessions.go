package codec

import (
	"github.com/roach88/mestouches/internal/binenc"
	"github.com/roach88/mestouches/internal/record"
)

const sessionsCurrent uint8 = 0

const sessionRecord = record.SubjectWidth + record.DocumentWidth + 8 + 8

// Sessions is the decoded window-session log.
type Sessions struct {
	Entries []record.SessionUsage
}

// Clone returns a deep copy.
func (s *Sessions) Clone() *Sessions {
	return &Sessions{Entries: append([]record.SessionUsage(nil), s.Entries...)}
}

type sessionsReader func(r *binenc.Reader, opts Options) (*Sessions, error)

var sessionsReaders = map[uint8]sessionsReader{
	0: readSessionsV0,
}

// DecodeSessions decodes any readable sessions version.
func DecodeSessions(b []byte, opts Options) (*Sessions, error) {
	version, r, err := readHeader(b, KindSessions)
	if err != nil {
		return nil, err
	}
	read, ok := sessionsReaders[version]
	if !ok {
		return nil, &ParseError{Kind: KindSessions, Version: version, Err: ErrUnsupportedVersion}
	}
	return read(r, opts)
}

func readSessionsV0(r *binenc.Reader, opts Options) (*Sessions, error) {
	if err := r.Need(4); err != nil {
		return nil, truncated(KindSessions, 0, r.Offset()+4, r.Offset()+r.Remaining())
	}
	declared := r.U32()
	n, _, err := fit(r, uint64(declared), sessionRecord, opts.Strict, KindSessions, 0)
	if err != nil {
		return nil, err
	}

	s := &Sessions{Entries: make([]record.SessionUsage, n)}
	for i := range s.Entries {
		e := &s.Entries[i]
		e.Subject = r.Text(record.SubjectWidth)
		e.Document = r.Text(record.DocumentWidth)
		e.Start = r.U64()
		e.End = r.U64()
	}
	return s, nil
}

// EncodeSessions writes s in the current layout.
func EncodeSessions(s *Sessions) []byte {
	w := binenc.NewWriter(headerSize + 4 + len(s.Entries)*sessionRecord)
	writeHeader(w, KindSessions)
	w.U32(uint32(len(s.Entries)))
	for _, e := range s.Entries {
		w.Text(e.Subject, record.SubjectWidth)
		w.Text(e.Document, record.DocumentWidth)
		w.U64(e.Start)
		w.U64(e.End)
	}
	return w.Bytes()
}
