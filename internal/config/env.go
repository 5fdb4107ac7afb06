package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "TREESYNC_CONFIG"
	// EnvPassword supplies the FTP or SFTP password without embedding it
	// in a URL or typing it at a prompt. Useful for scripted runs.
	EnvPassword = "TREESYNC_PASSWORD"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // TREESYNC_CONFIG: override config file path
	Password   string // TREESYNC_PASSWORD: remote password
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Password:   os.Getenv(EnvPassword),
	}
}
