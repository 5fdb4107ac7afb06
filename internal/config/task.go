package config

import (
	"fmt"
	"sort"
)

// ResolvedTask is the final merged configuration for one run: global
// sections with the task's overrides and then environment and CLI
// overrides applied on top.
type ResolvedTask struct {
	Name   string
	Local  string
	Remote string

	Mode             string
	ConflictStrategy string
	MtimeTolerance   string
	PropagateDeletes bool
	DryRun           bool
	Force            bool

	Parallel       int
	ConnectTimeout string

	Include []string
	Exclude []string

	TLSInsecure     bool
	KeyFile         string
	KnownHostsFile  string
	InsecureHostKey bool

	LogLevel  string
	LogFormat string

	// Password comes from TREESYNC_PASSWORD only; it is never read from
	// the config file.
	Password string
}

// ResolveTask merges the global sections with one named task's overrides.
// Unset task fields inherit the global value.
func ResolveTask(cfg *Config, name string) (*ResolvedTask, error) {
	task, ok := cfg.Tasks[name]
	if !ok {
		return nil, fmt.Errorf("no task %q in config (known tasks: %s)", name, taskNames(cfg))
	}

	if task.Local == "" || task.Remote == "" {
		return nil, fmt.Errorf("task %q: both local and remote must be set", name)
	}

	rt := resolvedFromGlobals(cfg)
	rt.Name = name
	rt.Local = ExpandPath(task.Local)
	rt.Remote = task.Remote

	if task.Mode != "" {
		rt.Mode = task.Mode
	}

	if task.ConflictStrategy != "" {
		rt.ConflictStrategy = task.ConflictStrategy
	}

	if task.MtimeTolerance != "" {
		rt.MtimeTolerance = task.MtimeTolerance
	}

	if task.PropagateDeletes != nil {
		rt.PropagateDeletes = *task.PropagateDeletes
	}

	if task.Parallel != nil {
		rt.Parallel = *task.Parallel
	}

	if task.Include != nil {
		rt.Include = task.Include
	}

	if task.Exclude != nil {
		rt.Exclude = task.Exclude
	}

	return rt, nil
}

// ResolveAdHoc builds a resolved task from explicit local and remote
// locations, using the global sections for everything else. This backs
// invocations that name the two trees on the command line instead of
// referring to a configured task.
func ResolveAdHoc(cfg *Config, local, remote string) *ResolvedTask {
	rt := resolvedFromGlobals(cfg)
	rt.Local = ExpandPath(local)
	rt.Remote = remote

	return rt
}

// resolvedFromGlobals seeds a ResolvedTask from the global sections.
func resolvedFromGlobals(cfg *Config) *ResolvedTask {
	return &ResolvedTask{
		Mode:             cfg.Sync.Mode,
		ConflictStrategy: cfg.Sync.ConflictStrategy,
		MtimeTolerance:   cfg.Sync.MtimeTolerance,
		PropagateDeletes: cfg.Sync.PropagateDeletes,
		DryRun:           cfg.Sync.DryRun,
		Parallel:         cfg.Transfers.Parallel,
		ConnectTimeout:   cfg.Transfers.ConnectTimeout,
		Include:          cfg.Filter.Include,
		Exclude:          cfg.Filter.Exclude,
		TLSInsecure:      cfg.Remote.TLSInsecure,
		KeyFile:          ExpandPath(cfg.Remote.KeyFile),
		KnownHostsFile:   ExpandPath(cfg.Remote.KnownHostsFile),
		InsecureHostKey:  cfg.Remote.InsecureHostKey,
		LogLevel:         cfg.Logging.LogLevel,
		LogFormat:        cfg.Logging.LogFormat,
	}
}

// ApplyOverrides layers environment and CLI values on top of the merged
// config. CLI flags win over everything.
func (rt *ResolvedTask) ApplyOverrides(env EnvOverrides, cli CLIOverrides) {
	if env.Password != "" {
		rt.Password = env.Password
	}

	if cli.Mode != "" {
		rt.Mode = cli.Mode
	}

	if cli.ConflictStrategy != "" {
		rt.ConflictStrategy = cli.ConflictStrategy
	}

	if cli.DryRun != nil {
		rt.DryRun = *cli.DryRun
	}

	if cli.PropagateDeletes != nil {
		rt.PropagateDeletes = *cli.PropagateDeletes
	}

	if cli.Force != nil {
		rt.Force = *cli.Force
	}

	if cli.Parallel != nil {
		rt.Parallel = *cli.Parallel
	}

	if cli.Include != nil {
		rt.Include = cli.Include
	}

	if cli.Exclude != nil {
		rt.Exclude = cli.Exclude
	}
}

// taskNames lists configured task names for error messages.
func taskNames(cfg *Config) string {
	if len(cfg.Tasks) == 0 {
		return "none"
	}

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}

	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}

		out += name
	}

	return out
}
