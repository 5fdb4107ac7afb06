package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))

	require.NoError(t, err)
	assert.Equal(t, defaultMode, cfg.Sync.Mode)
	assert.Equal(t, defaultParallel, cfg.Transfers.Parallel)
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[sync]
mode = "upload"
conflict_strategy = "newer"
mtime_tolerance = "1s"
propagate_deletes = true

[transfers]
parallel = 8
connect_timeout = "10s"

[filter]
include = ["*.txt"]
exclude = ["*.bak"]

[remote]
tls_insecure = true
key_file = "/home/u/.ssh/id_ed25519"

[logging]
log_level = "debug"
log_format = "json"

[task.photos]
local = "/home/u/Pictures"
remote = "sftp://u@nas/photos"
mode = "bidirectional"
parallel = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "upload", cfg.Sync.Mode)
	assert.Equal(t, "newer", cfg.Sync.ConflictStrategy)
	assert.True(t, cfg.Sync.PropagateDeletes)
	assert.Equal(t, 8, cfg.Transfers.Parallel)
	assert.Equal(t, []string{"*.txt"}, cfg.Filter.Include)
	assert.True(t, cfg.Remote.TLSInsecure)
	assert.Equal(t, "json", cfg.Logging.LogFormat)

	task, ok := cfg.Tasks["photos"]
	require.True(t, ok)
	assert.Equal(t, "sftp://u@nas/photos", task.Remote)
	require.NotNil(t, task.Parallel)
	assert.Equal(t, 2, *task.Parallel)
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[sync]
mode = "download"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "download", cfg.Sync.Mode)
	assert.Equal(t, defaultConflictStrategy, cfg.Sync.ConflictStrategy)
	assert.Equal(t, defaultMtimeTolerance, cfg.Sync.MtimeTolerance)
	assert.Equal(t, defaultParallel, cfg.Transfers.Parallel)
}

func TestLoadUnknownKeySuggests(t *testing.T) {
	path := writeConfig(t, `
[sync]
conflict_stratgy = "newer"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict_stratgy")
	assert.Contains(t, err.Error(), `did you mean "conflict_strategy"`)
}

func TestLoadUnknownKeyWithoutSuggestion(t *testing.T) {
	path := writeConfig(t, `
frobnicate_level = 11
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate_level")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoadInvalidValues(t *testing.T) {
	path := writeConfig(t, `
[sync]
mode = "sideways"
mtime_tolerance = "2 parsecs"

[transfers]
parallel = 9000
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "mtime_tolerance")
	assert.Contains(t, err.Error(), "parallel")
}

func TestLoadResolvedPrecedence(t *testing.T) {
	path := writeConfig(t, `
[sync]
mode = "upload"
`)

	cfg, err := LoadResolved(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "upload", cfg.Sync.Mode)

	// CLI path beats env path.
	other := writeConfig(t, `
[sync]
mode = "download"
`)

	cfg, err = LoadResolved(EnvOverrides{ConfigPath: path}, CLIOverrides{ConfigPath: other})
	require.NoError(t, err)
	assert.Equal(t, "download", cfg.Sync.Mode)
}
