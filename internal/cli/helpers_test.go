package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
	"github.com/roach88/mestouches/internal/store"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleKeystream() *codec.Keystream {
	k := &codec.Keystream{}
	k.Add(record.KeyEvent{Code: 65, Timestamp: 1000})
	k.Add(record.KeyEvent{Code: 65, Timestamp: 2000})
	k.Add(record.KeyEvent{Code: 13, Timestamp: 3000})
	return k
}

func samplePointer() *codec.Pointer {
	p := &codec.Pointer{
		Displays: []record.Display{
			{Hash: "DISPLAY1", Name: "left", Width: 1920, Height: 1080, Start: 10, End: 500},
			{Hash: "DISPLAY2", X: 1920, Width: 2560, Height: 1440, Start: 10, End: record.StillPresent},
		},
	}
	p.AddClick(record.ClickEvent{Button: record.ButtonLeft, X: 5, Y: 6, Timestamp: 11})
	p.AddClick(record.ClickEvent{Button: record.ButtonRight, X: 2000, Y: 700, Timestamp: 12})
	p.AddClick(record.ClickEvent{Button: record.ButtonLeft, X: 7, Y: 8, Timestamp: 13})
	return p
}

func sampleSessions() *codec.Sessions {
	return &codec.Sessions{Entries: []record.SessionUsage{
		{Subject: "editor.exe", Document: "main.go", Start: 100, End: 400},
		{Subject: "editor.exe", Document: "go.mod", Start: 500, End: 600},
		{Subject: "browser.exe", Document: "docs", Start: 700, End: 750},
	}}
}

// writeStores encodes the sample stores into dir under their usual names.
func writeStores(t *testing.T, dir string) {
	t.Helper()
	files := map[codec.Kind][]byte{
		codec.KindKeystream: codec.EncodeKeystream(sampleKeystream()),
		codec.KindPointer:   codec.EncodePointer(samplePointer()),
		codec.KindSessions:  codec.EncodeSessions(sampleSessions()),
	}
	for k, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, store.FileName(k)), data, 0o644))
	}
}
