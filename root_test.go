package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesync/treesync/internal/sync"
)

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"sync", "upload", "download", "scan", "watch"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("json"))
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in       string
		winner   sync.Winner
		all, ok  bool
	}{
		{"l", sync.WinnerLocal, false, true},
		{"L", sync.WinnerLocal, true, true},
		{"r", sync.WinnerRemote, false, true},
		{"R", sync.WinnerRemote, true, true},
		{"s", sync.WinnerSkip, false, true},
		{"S", sync.WinnerSkip, true, true},
		{"", sync.WinnerSkip, false, false},
		{"x", sync.WinnerSkip, false, false},
	}

	for _, tt := range tests {
		winner, all, ok := parseAnswer(tt.in)

		assert.Equal(t, tt.winner, winner, "answer %q", tt.in)
		assert.Equal(t, tt.all, all, "answer %q", tt.in)
		assert.Equal(t, tt.ok, ok, "answer %q", tt.in)
	}
}

func TestIsBookkeepingPath(t *testing.T) {
	assert.True(t, isBookkeepingPath("/data/"+sync.MetaFileName))
	assert.True(t, isBookkeepingPath("/data/sub/"+sync.LockFileName))
	assert.True(t, isBookkeepingPath("/data/"+sync.MetaFileName+".tmp-1234"))
	assert.False(t, isBookkeepingPath("/data/report.txt"))
}

func TestFormatTime(t *testing.T) {
	assert.Empty(t, formatTime(time.Time{}))

	sameYear := time.Date(time.Now().Year(), 3, 14, 9, 30, 0, 0, time.Local)
	assert.Contains(t, formatTime(sameYear), "9:30")

	old := time.Date(2019, 3, 14, 9, 30, 0, 0, time.Local)
	assert.Contains(t, formatTime(old), "2019")
}

func TestResolveRunArgCount(t *testing.T) {
	cmd := newSyncCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	var flags runFlags

	_, err := resolveRun(cmd, nil, "", &flags)

	assert.ErrorContains(t, err, "task name or LOCAL and REMOTE")
}
