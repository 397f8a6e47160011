package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivacy_Excluded(t *testing.T) {
	p, err := NewPrivacy([]string{"KeePass.exe", "*/private/*", "  ", "bank*"})
	require.NoError(t, err)

	tests := []struct {
		subject string
		want    bool
	}{
		{`C:\Program Files\KeePass\KeePass.exe`, true},
		{`D:\private\tool.exe`, true},
		{"/home/me/private/notes", true},
		{"bankapp", true},
		{`C:\Windows\notepad.exe`, false},
		{"Internal", false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Excluded(tt.subject))
		})
	}
	assert.Equal(t, []string{"keepass.exe", "*/private/*", "bank*"}, p.Patterns())
}

func TestPrivacy_UpdateKeepsOldSetOnError(t *testing.T) {
	p, err := NewPrivacy([]string{"a.exe"})
	require.NoError(t, err)

	err = p.Update([]string{"[unterminated"})
	require.Error(t, err)
	assert.True(t, p.Excluded("a.exe"))

	require.NoError(t, p.Update([]string{"b.exe"}))
	assert.False(t, p.Excluded("a.exe"))
	assert.True(t, p.Excluded("b.exe"))
}

func TestPrivacy_NilExcludesNothing(t *testing.T) {
	var p *Privacy
	assert.False(t, p.Excluded("anything"))
	assert.Nil(t, p.Patterns())
}
