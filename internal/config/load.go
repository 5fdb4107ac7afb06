package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// case: two locations on the command line need no config file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// LoadResolved applies the config-path precedence (CLI > env > default)
// and loads the file or the defaults.
func LoadResolved(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	return LoadOrDefault(cfgPath)
}

// Resolve loads configuration and applies the full override chain for a
// named task: defaults -> config file -> task section -> environment ->
// CLI flags. CLI flags always win, matching user expectations for one-off
// overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides, taskName string) (*ResolvedTask, error) {
	cfg, err := LoadResolved(env, cli)
	if err != nil {
		return nil, err
	}

	rt, err := ResolveTask(cfg, taskName)
	if err != nil {
		return nil, err
	}

	rt.ApplyOverrides(env, cli)

	if err := ValidateResolved(rt); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return rt, nil
}

// ResolvePaths is the ad-hoc counterpart of Resolve for runs that name the
// two trees directly.
func ResolvePaths(env EnvOverrides, cli CLIOverrides, local, remote string) (*ResolvedTask, error) {
	cfg, err := LoadResolved(env, cli)
	if err != nil {
		return nil, err
	}

	rt := ResolveAdHoc(cfg, local, remote)
	rt.ApplyOverrides(env, cli)

	if err := ValidateResolved(rt); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return rt, nil
}
