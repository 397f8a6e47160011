package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/record"
)

func newSessions(t *testing.T) *Sessions {
	t.Helper()
	opts, _ := testOptions(t)
	return NewSessions(filepath.Join(t.TempDir(), SessionsFile), opts)
}

func TestSessionsSubjectsAndDocuments(t *testing.T) {
	s := newSessions(t)
	ok, err := s.TryAppend([]record.SessionUsage{
		{Subject: "code.exe", Document: "main.go", Start: 0, End: 100},
		{Subject: "notepad.exe", Document: "todo.txt", Start: 100, End: 130},
		{Subject: "code.exe", Document: "store.go", Start: 130, End: 180},
		{Subject: "code.exe", Document: "main.go", Start: 200, End: 220},
		{Subject: "notepad.exe", Document: "main.go", Start: 220, End: 225},
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []SubjectUsage{
		{Subject: "code.exe", Total: 170, Documents: []Usage{
			{Name: "main.go", Total: 120},
			{Name: "store.go", Total: 50},
		}},
		{Subject: "notepad.exe", Total: 35, Documents: []Usage{
			{Name: "todo.txt", Total: 30},
			{Name: "main.go", Total: 5},
		}},
	}, s.Subjects())

	assert.Equal(t, []Usage{
		{Name: "main.go", Total: 125},
		{Name: "store.go", Total: 50},
		{Name: "todo.txt", Total: 30},
	}, s.Documents())
}

func TestSessionsCacheTracksAppends(t *testing.T) {
	s := newSessions(t)
	require.NoError(t, s.Append(record.SessionUsage{Subject: "a", Document: "x", Start: 0, End: 10}))
	require.Len(t, s.Subjects(), 1)

	require.NoError(t, s.Append(record.SessionUsage{Subject: "b", Document: "y", Start: 10, End: 40}))
	subjects := s.Subjects()
	require.Len(t, subjects, 2)
	assert.Equal(t, "b", subjects[0].Subject)
}

func TestSessionsAutosave(t *testing.T) {
	opts, _ := testOptions(t)
	opts.Threshold = 3
	path := filepath.Join(t.TempDir(), SessionsFile)
	s := NewSessions(path, opts)

	require.NoError(t, s.AppendAll([]record.SessionUsage{
		{Subject: "a", Document: "1", Start: 1, End: 2},
		{Subject: "a", Document: "2", Start: 2, End: 3},
		{Subject: "a", Document: "3", Start: 3, End: 4},
		{Subject: "a", Document: "4", Start: 4, End: 5},
	}))

	st := s.Stats()
	assert.Equal(t, 1, st.Autosaves)
	assert.Equal(t, 1, st.Modifications)

	saved, err := LoadSessions(path, opts)
	require.NoError(t, err)
	assert.Len(t, saved.Entries, 3)
}

func TestSessionsRepair(t *testing.T) {
	s := newSessions(t)
	require.NoError(t, s.AppendAll([]record.SessionUsage{
		{Subject: "a", Document: "1", Start: 50, End: 60},
		{Subject: "a", Document: "2", Start: 10, End: 20},
		{Subject: "a", Document: "3", Start: 70, End: 80},
	}))

	removed, err := s.Repair()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	snap, _ := s.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "3", snap.Entries[1].Document)
}
