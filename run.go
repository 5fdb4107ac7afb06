package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/treesync/treesync/internal/config"
	"github.com/treesync/treesync/internal/sync"
	"github.com/treesync/treesync/internal/target"
)

// errRunHadFailures signals a completed run with per-entry failures or
// unresolved conflicts. main() maps it to exit code 1 without re-printing;
// the report already listed the details.
var errRunHadFailures = errors.New("sync completed with failures")

// runFlags are the per-run flags shared by the sync, upload, and download
// commands.
type runFlags struct {
	dryRun   bool
	delete   bool
	force    bool
	resolve  string
	parallel int
	include  []string
	exclude  []string
}

// addRunFlags registers the shared run flags on a command.
func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "preview actions without executing them")
	cmd.Flags().BoolVar(&f.delete, "delete", true, "propagate deletions in one-way modes (--delete=false disables)")
	cmd.Flags().BoolVar(&f.force, "force", false, "replace an existing remote lock")
	cmd.Flags().StringVar(&f.resolve, "resolve", "", "conflict strategy: skip, local, remote, newer, larger, interactive")
	cmd.Flags().IntVar(&f.parallel, "parallel", 0, "concurrent transfers per directory")
	cmd.Flags().StringArrayVar(&f.include, "include", nil, "include only files matching this glob (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "exclude entries matching this glob (repeatable)")
}

// resolveRun turns command-line arguments and flags into the effective
// configuration. One argument names a configured task; two give the local
// and remote trees directly. mode is empty for the sync command (the
// config decides) and fixed for upload/download.
func resolveRun(cmd *cobra.Command, args []string, mode string, f *runFlags) (*config.ResolvedTask, error) {
	env := config.ReadEnvOverrides()

	cli := cliOverrides()
	cli.Mode = mode
	cli.ConflictStrategy = f.resolve
	cli.Include = f.include
	cli.Exclude = f.exclude

	// Pointer overrides only when the flag was given: --dry-run=false
	// must still beat a config file's dry_run = true.
	if cmd.Flags().Changed("dry-run") {
		cli.DryRun = &f.dryRun
	}

	if cmd.Flags().Changed("delete") {
		cli.PropagateDeletes = &f.delete
	}

	if cmd.Flags().Changed("force") {
		cli.Force = &f.force
	}

	if cmd.Flags().Changed("parallel") {
		cli.Parallel = &f.parallel
	}

	switch len(args) {
	case 1:
		return config.Resolve(env, cli, args[0])
	case 2:
		return config.ResolvePaths(env, cli, args[0], args[1])
	default:
		return nil, errors.New("expected a task name or LOCAL and REMOTE locations")
	}
}

// runSync is the body of the sync, upload, and download commands.
func runSync(cmd *cobra.Command, args []string, mode string, f *runFlags) error {
	rt, err := resolveRun(cmd, args, mode, f)
	if err != nil {
		return err
	}

	logger := buildLogger(rt.LogLevel, rt.LogFormat)

	local, remote, err := buildTargets(rt)
	if err != nil {
		return err
	}

	opts, err := engineOptions(rt, logger)
	if err != nil {
		return err
	}

	localRoot, err := filepath.Abs(config.ExpandPath(rt.Local))
	if err != nil {
		return fmt.Errorf("resolving local root: %w", err)
	}

	store := sync.NewFileMetadataStore(localRoot, logger)

	engine, err := sync.NewEngine(local, remote, store, opts, logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	report, err := engine.Run(ctx)

	printReport(report, flagJSON, flagQuiet)

	if err != nil {
		return err
	}

	if report.HasFailures() {
		return errRunHadFailures
	}

	return nil
}

// buildTargets constructs the two adapters from the resolved locations.
// The local side must be a filesystem path; every protocol is allowed on
// the remote side, including file for tree-to-tree syncs on one machine.
func buildTargets(rt *config.ResolvedTask) (local, remote target.Target, err error) {
	localLoc, err := target.ParseLocation(rt.Local)
	if err != nil {
		return nil, nil, err
	}

	if localLoc.IsRemote() {
		return nil, nil, fmt.Errorf("local tree must be a filesystem path, got %q", rt.Local)
	}

	remoteLoc, err := target.ParseLocation(rt.Remote)
	if err != nil {
		return nil, nil, err
	}

	// Password precedence: URL, TREESYNC_PASSWORD, terminal prompt. A
	// remote with no username (anonymous FTP) is never prompted for.
	if remoteLoc.IsRemote() && remoteLoc.Password == "" {
		remoteLoc.Password = rt.Password
	}

	if remoteLoc.IsRemote() && remoteLoc.User != "" && remoteLoc.Password == "" && rt.KeyFile == "" {
		remoteLoc.Password = promptPassword(remoteLoc.User, remoteLoc.Host)
	}

	timeout, err := time.ParseDuration(rt.ConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect_timeout: %w", err)
	}

	opts := target.Options{
		Timeout:         timeout,
		TLSInsecure:     rt.TLSInsecure,
		KeyFile:         rt.KeyFile,
		KnownHostsFile:  rt.KnownHostsFile,
		InsecureHostKey: rt.InsecureHostKey,
	}

	local, err = target.New(localLoc, opts)
	if err != nil {
		return nil, nil, err
	}

	remote, err = target.New(remoteLoc, opts)
	if err != nil {
		return nil, nil, err
	}

	return local, remote, nil
}

// engineOptions maps the resolved configuration onto engine options.
func engineOptions(rt *config.ResolvedTask, logger *slog.Logger) (sync.Options, error) {
	mode, err := sync.ParseMode(rt.Mode)
	if err != nil {
		return sync.Options{}, err
	}

	strategy, err := sync.ParseStrategy(rt.ConflictStrategy)
	if err != nil {
		return sync.Options{}, err
	}

	tolerance, err := time.ParseDuration(rt.MtimeTolerance)
	if err != nil {
		return sync.Options{}, fmt.Errorf("mtime_tolerance: %w", err)
	}

	opts := sync.Options{
		Mode:             mode,
		Strategy:         strategy,
		DryRun:           rt.DryRun,
		PropagateDeletes: rt.PropagateDeletes,
		Force:            rt.Force,
		ModTimeTolerance: tolerance,
		Parallel:         rt.Parallel,
		Include:          rt.Include,
		Exclude:          rt.Exclude,
	}

	if tolerance == 0 {
		// Zero in config means exact whole-second comparison, not the
		// engine default.
		opts.ModTimeTolerance = -1
	}

	if strategy == sync.StrategyInteractive {
		decide, ok := newPromptDecider()
		if !ok {
			logger.Warn("interactive conflict resolution needs a terminal; conflicts will be skipped")
		} else {
			opts.Decide = decide
		}
	}

	return opts, nil
}
