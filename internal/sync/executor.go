package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/treesync/treesync/internal/target"
)

// retryBaseDelay and retryAttempts bound the executor's retry of
// timeout-classified adapter failures.
const (
	retryBaseDelay = 250 * time.Millisecond
	retryAttempts  = 2
)

// Executor applies a DirectoryPlan to the targets in plan order and keeps
// the baseline current: every successful action updates the directory
// record and persists it immediately, so an interrupted run leaves a
// consistent partial baseline instead of none.
type Executor struct {
	local  target.Target
	remote target.Target
	store  MetadataStore
	report *Report
	logger *slog.Logger

	dryRun   bool
	parallel int

	// recMu guards the directory record shared by parallel transfers.
	recMu sync.Mutex
}

// NewExecutor builds an executor. parallel bounds concurrent file
// transfers within one directory; 1 serializes everything.
func NewExecutor(local, remote target.Target, store MetadataStore, report *Report, dryRun bool, parallel int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if parallel < 1 {
		parallel = 1
	}

	return &Executor{
		local:    local,
		remote:   remote,
		store:    store,
		report:   report,
		logger:   logger,
		dryRun:   dryRun,
		parallel: parallel,
	}
}

// ExecuteDirectory runs one directory's plan: directory creations first,
// then file operations (parallel across independent entries), then
// wholesale directory removals. A single entry's failure is recorded and
// never aborts the pass; only cancellation does.
func (e *Executor) ExecuteDirectory(ctx context.Context, plan *DirectoryPlan, rec *DirectoryRecord) error {
	for i := range plan.Mkdirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.runAction(ctx, &plan.Mkdirs[i], rec)
	}

	var g errgroup.Group
	g.SetLimit(e.parallel)

	for i := range plan.FileOps {
		if err := ctx.Err(); err != nil {
			break
		}

		a := &plan.FileOps[i]

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			e.runAction(ctx, a, rec)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Removal groups run in order: children bottom-up, the directory
	// itself last. A failure inside a group abandons its remainder — the
	// rmdir would fail on the non-empty directory anyway.
	for _, group := range plan.RmdirGroups {
		for i := range group {
			if err := ctx.Err(); err != nil {
				return err
			}

			if !e.runAction(ctx, &group[i], rec) {
				e.logger.Warn("abandoning directory removal, child action failed",
					slog.String("path", group[len(group)-1].Path),
				)

				break
			}
		}
	}

	// Drop baselines for entries gone from both sides.
	if len(plan.Prunes) > 0 && !e.dryRun {
		e.recMu.Lock()
		for _, name := range plan.Prunes {
			rec.Remove(name)
		}
		err := e.store.Save(plan.Path, rec)
		e.recMu.Unlock()

		if err != nil {
			e.report.AddError(plan.Path, "metadata", err)
		}
	}

	return ctx.Err()
}

// runAction executes one action, records the outcome, and reports whether
// it succeeded.
func (e *Executor) runAction(ctx context.Context, a *Action, rec *DirectoryRecord) bool {
	if a.Kind == ActionSkip {
		e.report.AddAction(a)
		return true
	}

	if e.dryRun {
		e.logger.Info("dry-run",
			slog.String("action", a.Kind.String()),
			slog.String("path", a.Path),
			slog.String("reason", a.Reason),
		)
		e.report.AddAction(a)

		return true
	}

	var err error

	switch a.Kind {
	case ActionAdopt:
		err = e.adopt(ctx, a, rec)
	case ActionCopyToRemote:
		err = e.copyFile(ctx, a, rec, e.local, e.remote)
	case ActionCopyToLocal:
		err = e.copyFile(ctx, a, rec, e.remote, e.local)
	case ActionDeleteLocal:
		err = e.deleteEntry(ctx, a, rec, e.local)
	case ActionDeleteRemote:
		err = e.deleteEntry(ctx, a, rec, e.remote)
	case ActionMkdirLocal:
		err = e.mkdir(ctx, a, rec, e.local)
	case ActionMkdirRemote:
		err = e.mkdir(ctx, a, rec, e.remote)
	case ActionRmdirLocal:
		err = e.rmdir(ctx, a, rec, e.local)
	case ActionRmdirRemote:
		err = e.rmdir(ctx, a, rec, e.remote)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		e.logger.Error("action failed",
			slog.String("action", a.Kind.String()),
			slog.String("path", a.Path),
			slog.Any("error", err),
		)
		e.report.AddError(a.Path, a.Kind.String(), err)

		return false
	}

	e.report.AddAction(a)

	return true
}

// copyFile streams one file from src to dst, restores its modification
// time, and refreshes the baseline from post-action observations.
func (e *Executor) copyFile(ctx context.Context, a *Action, rec *DirectoryRecord, src, dst target.Target) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.transfer(ctx, a, src, dst)
	})
	if err != nil {
		return err
	}

	srcEntry := a.Local
	if src == e.remote {
		srcEntry = a.Remote
	}

	// Stamp the destination with the source time so both sides agree on
	// the baseline. Not every server honors it; the observation below
	// catches whatever the destination actually stored.
	if err := dst.SetModTime(ctx, a.Path, srcEntry.ModTime); err != nil {
		if !errors.Is(err, target.ErrUnsupported) {
			e.logger.Debug("could not restore modification time",
				slog.String("path", a.Path),
				slog.Any("error", err),
			)
		}
	}

	return e.refreshBaseline(ctx, a, rec)
}

// transfer performs the byte copy for one action.
func (e *Executor) transfer(ctx context.Context, a *Action, src, dst target.Target) error {
	r, err := src.OpenRead(ctx, a.Path)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := dst.OpenWrite(ctx, a.Path)
	if err != nil {
		return err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("copying %s: %w", a.Path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing %s: %w", a.Path, err)
	}

	e.report.AddBytes(a.Kind, n)

	return nil
}

// deleteEntry removes a file and drops its baseline.
func (e *Executor) deleteEntry(ctx context.Context, a *Action, rec *DirectoryRecord, t target.Target) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return t.Delete(ctx, a.Path)
	})
	if err != nil && !errors.Is(err, target.ErrNotFound) {
		return err
	}

	e.dropBaseline(a, rec)

	return nil
}

// mkdir creates a directory on one side and baselines the node.
func (e *Executor) mkdir(ctx context.Context, a *Action, rec *DirectoryRecord, t target.Target) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return t.Mkdir(ctx, a.Path)
	})
	if err != nil {
		return err
	}

	return e.refreshBaseline(ctx, a, rec)
}

// rmdir removes a directory node (its children were removed by the
// preceding expanded actions) and drops its baseline.
func (e *Executor) rmdir(ctx context.Context, a *Action, rec *DirectoryRecord, t target.Target) error {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return t.Rmdir(ctx, a.Path)
	})
	if err != nil && !errors.Is(err, target.ErrNotFound) {
		return err
	}

	e.dropBaseline(a, rec)

	return nil
}

// adopt records a baseline for an entry already identical on both sides.
func (e *Executor) adopt(ctx context.Context, a *Action, rec *DirectoryRecord) error {
	return e.refreshBaseline(ctx, a, rec)
}

// refreshBaseline observes both sides of an entry after a successful
// action and persists the updated directory record.
func (e *Executor) refreshBaseline(ctx context.Context, a *Action, rec *DirectoryRecord) error {
	if a.expanded {
		// Children of a wholesale removal have no baseline here.
		return nil
	}

	local := e.observe(ctx, e.local, a, a.Local)
	remote := e.observe(ctx, e.remote, a, a.Remote)

	kind := target.KindFile
	if a.IsDir() {
		kind = target.KindDir
	}

	base := &BaselineRecord{
		Kind:     kind.String(),
		Local:    local,
		Remote:   remote,
		LastSync: time.Now().UTC(),
	}

	e.recMu.Lock()
	defer e.recMu.Unlock()

	rec.Update(a.Name, base)

	if err := e.store.Save(rec.Path, rec); err != nil {
		return fmt.Errorf("persisting baseline for %s: %w", a.Path, err)
	}

	return nil
}

// observe stats one side of an entry, falling back to the pre-action
// observation when the stat fails (e.g. a server without MLST).
func (e *Executor) observe(ctx context.Context, t target.Target, a *Action, fallback *target.Entry) SideBaseline {
	entry, err := t.Stat(ctx, a.Path)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return SideBaseline{}
		}

		if fallback != nil {
			return SideBaseline{Size: fallback.Size, ModTime: fallback.ModTime, Existed: true}
		}

		return SideBaseline{}
	}

	return SideBaseline{Size: entry.Size, ModTime: entry.ModTime, Existed: true}
}

// dropBaseline removes an entry's baseline and persists, unless the action
// belongs to an expanded removal (whose metadata file disappears with its
// directory).
func (e *Executor) dropBaseline(a *Action, rec *DirectoryRecord) {
	if a.expanded {
		return
	}

	e.recMu.Lock()
	defer e.recMu.Unlock()

	rec.Remove(a.Name)

	if err := e.store.Save(rec.Path, rec); err != nil {
		e.report.AddError(a.Path, "metadata", err)
	}
}

// withRetry retries timeout-classified failures with exponential backoff.
func (e *Executor) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && target.IsRetryable(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}
