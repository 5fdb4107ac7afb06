// Package config implements TOML configuration loading, validation, and
// path resolution for treesync. It supports a four-layer override chain
// (defaults -> config file -> environment -> CLI flags) with named task
// sections that override global settings field by field.
package config

// Config is the top-level configuration structure parsed from a TOML file.
// It contains named tasks and global configuration sections. A task may
// override individual fields of the global sections; unset task fields
// fall back to the global value.
type Config struct {
	Tasks     map[string]Task `toml:"task"`
	Sync      SyncConfig      `toml:"sync"`
	Transfers TransfersConfig `toml:"transfers"`
	Filter    FilterConfig    `toml:"filter"`
	Remote    RemoteConfig    `toml:"remote"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SyncConfig controls the engine: direction, conflict handling, and change
// detection tuning.
type SyncConfig struct {
	// Mode is bidirectional, upload, or download.
	Mode string `toml:"mode"`
	// ConflictStrategy is skip, local, remote, newer, larger, or
	// interactive.
	ConflictStrategy string `toml:"conflict_strategy"`
	// MtimeTolerance is the modification-time difference still considered
	// equal, as a duration string. Transports truncate timestamps at
	// different granularities; 2s covers FAT and FTP.
	MtimeTolerance string `toml:"mtime_tolerance"`
	// PropagateDeletes controls deletion propagation in one-way modes.
	// On by default; bidirectional runs always propagate deletions.
	PropagateDeletes bool `toml:"propagate_deletes"`
	DryRun           bool `toml:"dry_run"`
}

// TransfersConfig controls parallelism and network timing.
type TransfersConfig struct {
	// Parallel bounds concurrent file transfers per directory.
	Parallel int `toml:"parallel"`
	// ConnectTimeout covers connection setup and per-operation deadlines
	// on remote targets, as a duration string.
	ConnectTimeout string `toml:"connect_timeout"`
}

// FilterConfig controls which entries participate in a sync. Patterns are
// glob expressions matched against entry names.
type FilterConfig struct {
	// Include constrains files to the matching set; directories always
	// stay visible. Empty means all files.
	Include []string `toml:"include"`
	// Exclude drops matching files and directories. Unset falls back to
	// built-in exclusions (.git, .DS_Store and friends).
	Exclude []string `toml:"exclude"`
}

// RemoteConfig holds connection settings for FTP/FTPS/SFTP targets.
type RemoteConfig struct {
	// TLSInsecure skips certificate verification on FTPS connections.
	TLSInsecure bool `toml:"tls_insecure"`
	// KeyFile is the SSH private key for SFTP public-key authentication.
	KeyFile string `toml:"key_file"`
	// KnownHostsFile overrides ~/.ssh/known_hosts for SFTP host key
	// verification.
	KnownHostsFile string `toml:"known_hosts_file"`
	// InsecureHostKey accepts any SFTP host key. Test setups only.
	InsecureHostKey bool `toml:"insecure_host_key"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	// LogLevel is debug, info, warn, or error.
	LogLevel string `toml:"log_level"`
	// LogFormat is auto, text, or json. Auto picks colored text on a
	// terminal and plain text otherwise.
	LogFormat string `toml:"log_format"`
}

// Task is a named pair of trees with optional per-task overrides of the
// global sync settings. Pointer fields distinguish "not set" (inherit the
// global value) from an explicit zero.
type Task struct {
	Local  string `toml:"local"`
	Remote string `toml:"remote"`

	Mode             string   `toml:"mode"`
	ConflictStrategy string   `toml:"conflict_strategy"`
	MtimeTolerance   string   `toml:"mtime_tolerance"`
	PropagateDeletes *bool    `toml:"propagate_deletes"`
	Parallel         *int     `toml:"parallel"`
	Include          []string `toml:"include"`
	Exclude          []string `toml:"exclude"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value" — --dry-run=false is different from
// not passing --dry-run at all.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)

	Mode             string   // set by the subcommand (sync/upload/download)
	ConflictStrategy string   // --resolve flag
	DryRun           *bool    // --dry-run flag
	PropagateDeletes *bool    // --delete flag
	Force            *bool    // --force flag
	Parallel         *int     // --parallel flag
	Include          []string // --include flag (repeatable)
	Exclude          []string // --exclude flag (repeatable)
}
