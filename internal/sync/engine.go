package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/treesync/treesync/internal/target"
)

// DefaultModTimeTolerance absorbs timestamp granularity differences across
// filesystems and protocols (FAT rounds to 2s, FTP MDTM to whole seconds).
const DefaultModTimeTolerance = 2 * time.Second

// defaultParallel bounds concurrent transfers when the caller does not.
const defaultParallel = 4

// Options configures one sync run.
type Options struct {
	Mode     Mode
	Strategy Strategy

	// DryRun plans and reports without touching either tree or the
	// baseline.
	DryRun bool
	// PropagateDeletes enables deletion propagation in one-way modes.
	// Bidirectional runs always propagate.
	PropagateDeletes bool
	// Force replaces an existing remote lock instead of refusing the run.
	Force bool

	// ModTimeTolerance for change detection; zero means
	// DefaultModTimeTolerance. Negative disables the tolerance (exact
	// whole-second comparison).
	ModTimeTolerance time.Duration
	// Parallel bounds concurrent file transfers per directory.
	Parallel int

	Include []string
	Exclude []string

	// Decide answers conflicts under the interactive strategy.
	Decide DecideFunc
}

// tolerance returns the effective modification-time tolerance.
func (o *Options) tolerance() time.Duration {
	switch {
	case o.ModTimeTolerance < 0:
		return 0
	case o.ModTimeTolerance == 0:
		return DefaultModTimeTolerance
	default:
		return o.ModTimeTolerance
	}
}

// Engine drives one run: it connects both targets, walks the tree
// top-down, and per directory pairs, classifies, plans, and executes
// before descending. Ordering falls out of that shape — parents are
// created before children, children removed before parents.
type Engine struct {
	local  target.Target
	remote target.Target
	store  MetadataStore
	opts   Options
	logger *slog.Logger

	report     *Report
	walker     *Walker
	classifier *Classifier
	planner    *Planner
	executor   *Executor
}

// NewEngine builds an engine over two connected-or-connectable targets.
// The store persists baselines on the local side.
func NewEngine(local, remote target.Target, store MetadataStore, opts Options, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Parallel < 1 {
		opts.Parallel = defaultParallel
	}

	filter, err := NewFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	report := NewReport(opts.Mode, opts.DryRun)
	classifier := NewClassifier(opts.tolerance())
	resolver := NewResolver(opts.Strategy, opts.Decide, logger)

	propagate := opts.PropagateDeletes || opts.Mode == ModeBidirectional

	return &Engine{
		local:      local,
		remote:     remote,
		store:      store,
		opts:       opts,
		logger:     logger,
		report:     report,
		walker:     NewWalker(local, remote, filter, report, logger),
		classifier: classifier,
		planner:    NewPlanner(opts.Mode, resolver, classifier, propagate, report, logger),
		executor:   NewExecutor(local, remote, store, report, opts.DryRun, opts.Parallel, logger),
	}, nil
}

// Run synchronizes the two trees and returns the report. The report is
// valid even when err is non-nil; per-entry failures never surface as err,
// only conditions that abort the walk (cancellation, unusable roots).
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	defer e.report.Finish()

	if err := e.local.Connect(ctx); err != nil {
		return e.report, fmt.Errorf("connecting local target: %w", err)
	}
	defer e.local.Close()

	if err := e.remote.Connect(ctx); err != nil {
		return e.report, fmt.Errorf("connecting remote target: %w", err)
	}
	defer e.remote.Close()

	e.logger.Info("sync run starting",
		slog.String("run_id", e.report.RunID),
		slog.String("mode", e.opts.Mode.String()),
		slog.String("local", e.local.String()),
		slog.String("remote", e.remote.String()),
		slog.Bool("dry_run", e.opts.DryRun),
	)

	if !e.opts.DryRun {
		lock := newRemoteLock(e.remote, e.report.RunID, e.logger)
		if err := lock.Acquire(ctx, e.opts.Mode, e.opts.Force); err != nil {
			return e.report, err
		}

		// Release with a fresh context so cancellation does not leave the
		// lock behind.
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			lock.Release(releaseCtx)
		}()
	}

	err := e.syncDir(ctx, "")

	e.logger.Info("sync run finished",
		slog.String("run_id", e.report.RunID),
		slog.Int("errors", len(e.report.Errors)),
		slog.Int("conflicts", e.report.Stats.Conflicts),
	)

	return e.report, err
}

// syncDir processes one directory level, then descends into the
// sub-directories the plan selected. Unreadable directories are recorded
// and skipped; their siblings proceed. An unreadable root aborts the run
// instead: neither tree may be walked when one of them cannot be reached.
func (e *Engine) syncDir(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.report.AddDirVisited()

	rec := e.store.Load(relPath)

	pairs, err := e.walker.PairDirectory(ctx, relPath)
	if err != nil {
		if relPath == "" {
			return fmt.Errorf("tree root unreachable: %w", err)
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		e.logger.Error("skipping unreadable directory",
			slog.String("path", relPath),
			slog.Any("error", err),
		)
		e.report.AddError(relPath, "list", err)

		return nil
	}

	cls := make([]Classification, 0, len(pairs))

	for _, pair := range pairs {
		cls = append(cls, e.classifier.Classify(pair, rec.Get(pair.Name)))
	}

	plan, err := e.planner.PlanDirectory(ctx, relPath, cls)
	if err != nil {
		return err
	}

	if err := e.expandRmdirs(ctx, plan); err != nil {
		return err
	}

	if err := e.executor.ExecuteDirectory(ctx, plan, rec); err != nil {
		return err
	}

	for _, name := range plan.Recurse {
		if err := e.syncDir(ctx, path.Join(relPath, name)); err != nil {
			return err
		}
	}

	return nil
}

// expandRmdirs turns each wholesale directory removal into an explicit
// bottom-up sequence: every file beneath it deleted first, nested
// directories removed innermost-out, the directory itself last. The
// expansion lists the doomed subtree unfiltered, so bookkeeping files
// inside it are removed too.
func (e *Engine) expandRmdirs(ctx context.Context, plan *DirectoryPlan) error {
	if len(plan.Rmdirs) == 0 {
		return nil
	}

	plan.RmdirGroups = make([][]Action, 0, len(plan.Rmdirs))

	for i := range plan.Rmdirs {
		root := plan.Rmdirs[i]

		t := e.remote
		deleteKind, rmdirKind := ActionDeleteRemote, ActionRmdirRemote

		if root.Kind == ActionRmdirLocal {
			t = e.local
			deleteKind, rmdirKind = ActionDeleteLocal, ActionRmdirLocal
		}

		group, err := e.expandSubtree(ctx, t, root.Path, deleteKind, rmdirKind)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			// Could not enumerate the subtree; keep the bare rmdir so the
			// attempt (and its failure, if non-empty) is visible.
			e.report.AddWarning("could not expand removal of %s: %v", root.Path, err)
			plan.RmdirGroups = append(plan.RmdirGroups, []Action{root})

			continue
		}

		plan.RmdirGroups = append(plan.RmdirGroups, append(group, root))
	}

	return nil
}

// expandSubtree lists one doomed directory depth-first and returns the
// deletion actions for its contents, innermost first.
func (e *Engine) expandSubtree(ctx context.Context, t target.Target, dirPath string, deleteKind, rmdirKind ActionKind) ([]Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := t.List(ctx, dirPath)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var out []Action

	for i := range entries {
		entry := entries[i]
		entryPath := path.Join(dirPath, entry.Name)

		if entry.Kind == target.KindDir {
			sub, err := e.expandSubtree(ctx, t, entryPath, deleteKind, rmdirKind)
			if err != nil {
				return nil, err
			}

			out = append(out, sub...)
			out = append(out, Action{
				Kind:     rmdirKind,
				Name:     entry.Name,
				Path:     entryPath,
				Reason:   "inside removed directory",
				expanded: true,
			})

			continue
		}

		out = append(out, Action{
			Kind:     deleteKind,
			Name:     entry.Name,
			Path:     entryPath,
			Reason:   "inside removed directory",
			expanded: true,
		})
	}

	return out, nil
}
