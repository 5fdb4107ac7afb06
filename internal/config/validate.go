package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minParallel       = 1
	maxParallel       = 32
	minConnectTimeout = 1 * time.Second
	maxMtimeTolerance = time.Minute
)

var validModes = map[string]bool{
	"bidirectional": true,
	"sync":          true,
	"upload":        true,
	"download":      true,
}

var validStrategies = map[string]bool{
	"skip":        true,
	"local":       true,
	"remote":      true,
	"newer":       true,
	"larger":      true,
	"interactive": true,
	"ask":         true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync("", &cfg.Sync)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	for name, task := range cfg.Tasks {
		errs = append(errs, validateTask(name, &task)...)
	}

	return errors.Join(errs...)
}

// ValidateResolved checks the final merged result after the override chain
// has been applied. Catches constraints that only make sense then, such as
// CLI-provided strategies.
func ValidateResolved(rt *ResolvedTask) error {
	var errs []error

	if rt.Local == "" {
		errs = append(errs, errors.New("local tree location must be set"))
	}

	if rt.Remote == "" {
		errs = append(errs, errors.New("remote tree location must be set"))
	}

	if !validModes[rt.Mode] {
		errs = append(errs, fmt.Errorf("mode: must be bidirectional, upload, or download; got %q", rt.Mode))
	}

	if !validStrategies[rt.ConflictStrategy] {
		errs = append(errs, fmt.Errorf(
			"conflict_strategy: must be one of skip, local, remote, newer, larger, interactive; got %q",
			rt.ConflictStrategy))
	}

	if rt.Parallel < minParallel || rt.Parallel > maxParallel {
		errs = append(errs, fmt.Errorf("parallel: must be between %d and %d, got %d",
			minParallel, maxParallel, rt.Parallel))
	}

	return errors.Join(errs...)
}

func validateSync(prefix string, s *SyncConfig) []error {
	var errs []error

	if s.Mode != "" && !validModes[s.Mode] {
		errs = append(errs, fmt.Errorf("%smode: must be bidirectional, upload, or download; got %q",
			prefix, s.Mode))
	}

	if s.ConflictStrategy != "" && !validStrategies[s.ConflictStrategy] {
		errs = append(errs, fmt.Errorf(
			"%sconflict_strategy: must be one of skip, local, remote, newer, larger, interactive; got %q",
			prefix, s.ConflictStrategy))
	}

	errs = append(errs, validateMtimeTolerance(prefix, s.MtimeTolerance)...)

	return errs
}

func validateMtimeTolerance(prefix, value string) []error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%smtime_tolerance: invalid duration %q: %w", prefix, value, err)}
	}

	if d < 0 || d > maxMtimeTolerance {
		return []error{fmt.Errorf("%smtime_tolerance: must be between 0 and %s, got %s",
			prefix, maxMtimeTolerance, d)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.Parallel < minParallel || t.Parallel > maxParallel {
		errs = append(errs, fmt.Errorf("parallel: must be between %d and %d, got %d",
			minParallel, maxParallel, t.Parallel))
	}

	errs = append(errs, validateDurationMin("connect_timeout", t.ConnectTimeout, minConnectTimeout)...)

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateTask(name string, task *Task) []error {
	var errs []error

	prefix := fmt.Sprintf("task.%s.", name)

	if task.Local == "" {
		errs = append(errs, fmt.Errorf("%slocal: must be set", prefix))
	}

	if task.Remote == "" {
		errs = append(errs, fmt.Errorf("%sremote: must be set", prefix))
	}

	taskSync := SyncConfig{
		Mode:             task.Mode,
		ConflictStrategy: task.ConflictStrategy,
		MtimeTolerance:   task.MtimeTolerance,
	}
	errs = append(errs, validateSync(prefix, &taskSync)...)

	if task.Parallel != nil && (*task.Parallel < minParallel || *task.Parallel > maxParallel) {
		errs = append(errs, fmt.Errorf("%sparallel: must be between %d and %d, got %d",
			prefix, minParallel, maxParallel, *task.Parallel))
	}

	return errs
}

// validateDurationMin checks that a duration string parses and meets a
// minimum.
func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
