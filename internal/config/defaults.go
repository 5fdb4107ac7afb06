package config

// Default values for configuration options. These are "layer 0" of the
// override chain and are chosen so a run without any config file behaves
// safely: bidirectional with conflicts skipped, moderate parallelism.
const (
	defaultMode             = "bidirectional"
	defaultConflictStrategy = "skip"
	defaultMtimeTolerance   = "2s"
	// Deletions propagate by default in every mode; set propagate_deletes
	// to false (or pass --delete=false) to keep one-way runs from deleting.
	defaultPropagateDeletes = true
	defaultParallel         = 4
	defaultConnectTimeout   = "30s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (so unset fields retain
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Tasks: make(map[string]Task),
		Sync: SyncConfig{
			Mode:             defaultMode,
			ConflictStrategy: defaultConflictStrategy,
			MtimeTolerance:   defaultMtimeTolerance,
			PropagateDeletes: defaultPropagateDeletes,
		},
		Transfers: TransfersConfig{
			Parallel:       defaultParallel,
			ConnectTimeout: defaultConnectTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
