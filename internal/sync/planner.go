package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/treesync/treesync/internal/target"
)

// DirectoryPlan is the ordered work for one directory level. Directory
// creations run before any file action so children have a destination;
// wholesale directory removals run last, after their planned children are
// gone (see expandRmdirs in the engine).
type DirectoryPlan struct {
	Path string

	Mkdirs  []Action
	FileOps []Action
	Rmdirs  []Action

	// RmdirGroups is filled by the engine's removal expansion: one ordered
	// group per entry of Rmdirs, each ending with the rmdir itself and
	// preceded by the deletions of everything beneath it.
	RmdirGroups [][]Action

	// Prunes lists baseline entries that vanished from both sides and
	// carry no further information.
	Prunes []string

	// Recurse lists sub-directory names to descend into after this level
	// executes. Directories slated for removal are never recursed; their
	// subtree goes wholesale.
	Recurse []string
}

// Ordered returns the actions in execution order. Expanded removal groups
// replace the bare rmdir actions when present.
func (p *DirectoryPlan) Ordered() []Action {
	out := make([]Action, 0, len(p.Mkdirs)+len(p.FileOps)+len(p.Rmdirs))
	out = append(out, p.Mkdirs...)
	out = append(out, p.FileOps...)

	if len(p.RmdirGroups) > 0 {
		for _, group := range p.RmdirGroups {
			out = append(out, group...)
		}

		return out
	}

	out = append(out, p.Rmdirs...)

	return out
}

// Planner turns classifications into a DirectoryPlan under the configured
// mode. Pure decision logic; the only side effects are report counters for
// conflicts and the resolver callback under the interactive strategy.
type Planner struct {
	mode       Mode
	resolver   *Resolver
	classifier *Classifier
	// propagateDeletes gates deletion propagation in one-way modes; the
	// CLI maps --delete onto it.
	propagateDeletes bool
	report           *Report
	logger           *slog.Logger
}

// NewPlanner builds a planner.
func NewPlanner(mode Mode, resolver *Resolver, classifier *Classifier, propagateDeletes bool, report *Report, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Planner{
		mode:             mode,
		resolver:         resolver,
		classifier:       classifier,
		propagateDeletes: propagateDeletes,
		report:           report,
		logger:           logger,
	}
}

// PlanDirectory produces the plan for one directory level from its
// classified entries. Classifications arrive in name order and actions
// keep that order within each phase.
func (p *Planner) PlanDirectory(ctx context.Context, relPath string, cls []Classification) (*DirectoryPlan, error) {
	plan := &DirectoryPlan{Path: relPath}

	for _, cl := range cls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := p.planEntry(ctx, plan, cl); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// planEntry dispatches one classified entry.
func (p *Planner) planEntry(ctx context.Context, plan *DirectoryPlan, cl Classification) error {
	entryPath := path.Join(plan.Path, cl.Pair.Name)

	p.logger.Debug("classify",
		slog.String("path", entryPath),
		slog.String("local", cl.Local.String()),
		slog.String("remote", cl.Remote.String()),
		slog.Bool("first_encounter", cl.FirstEncounter),
	)

	switch {
	case cl.KindMismatch:
		p.addSkip(plan, cl, "file and directory share this name")
		return nil

	case cl.InSync:
		plan.FileOps = append(plan.FileOps, newAction(plan, ActionAdopt, cl, "already identical on both sides"))
		p.maybeRecurse(plan, cl)

		return nil
	}

	local, remote := p.effectiveCategories(cl)

	switch {
	case !local.changed() && !remote.changed():
		p.planUnchanged(plan, cl)

	case local == Deleted && remote == Deleted:
		// Convergent deletion: nothing to transfer, drop the baseline.
		plan.Prunes = append(plan.Prunes, cl.Pair.Name)

	case local.changed() && remote.changed():
		return p.planConflict(ctx, plan, cl)

	case local.changed():
		p.planPropagation(plan, cl, WinnerLocal, local)

	default:
		p.planPropagation(plan, cl, WinnerRemote, remote)
	}

	return nil
}

// effectiveCategories applies the mode policy: one-way modes ignore
// changes originating on the non-authoritative side unless they collide
// with a change on the authoritative side — an upload still refuses to
// silently destroy an independently-changed remote file.
func (p *Planner) effectiveCategories(cl Classification) (local, remote ChangeCategory) {
	local, remote = cl.Local, cl.Remote

	switch p.mode {
	case ModeUpload:
		if !local.changed() {
			remote = Unchanged
		}
	case ModeDownload:
		if !remote.changed() {
			local = Unchanged
		}
	}

	return local, remote
}

// planUnchanged handles entries with no effective change. A baseline whose
// entry is gone from both sides is pruned.
func (p *Planner) planUnchanged(plan *DirectoryPlan, cl Classification) {
	if cl.Pair.Local == nil && cl.Pair.Remote == nil {
		if cl.Baseline != nil {
			plan.Prunes = append(plan.Prunes, cl.Pair.Name)
		}

		return
	}

	p.maybeRecurse(plan, cl)
}

// planPropagation emits the action that carries one side's change to the
// other side.
func (p *Planner) planPropagation(plan *DirectoryPlan, cl Classification, source Winner, category ChangeCategory) {
	isDir := pairIsDir(cl.Pair)

	if category == Deleted {
		p.planDeletion(plan, cl, source, isDir)
		return
	}

	// Added or Modified: copy (files) or create (directories) toward the
	// other side.
	if isDir {
		kind := ActionMkdirRemote
		if source == WinnerRemote {
			kind = ActionMkdirLocal
		}

		// An already-present destination directory needs no mkdir (the
		// directory itself was "modified", which carries no signal).
		if destMissing(cl.Pair, source) {
			plan.Mkdirs = append(plan.Mkdirs, newAction(plan, kind, cl, category.String()+" locally on one side"))
		}

		p.maybeRecurse(plan, cl)

		return
	}

	kind := ActionCopyToRemote
	if source == WinnerRemote {
		kind = ActionCopyToLocal
	}

	plan.FileOps = append(plan.FileOps, newAction(plan, kind, cl, category.String()))
}

// planDeletion propagates a deletion to the surviving side, honoring the
// propagate-deletes gate in one-way modes.
func (p *Planner) planDeletion(plan *DirectoryPlan, cl Classification, source Winner, isDir bool) {
	if p.mode != ModeBidirectional && !p.propagateDeletes {
		p.addSkip(plan, cl, "deletion not propagated (propagate_deletes is off)")
		return
	}

	var kind ActionKind

	switch {
	case isDir && source == WinnerLocal:
		kind = ActionRmdirRemote
	case isDir:
		kind = ActionRmdirLocal
	case source == WinnerLocal:
		kind = ActionDeleteRemote
	default:
		kind = ActionDeleteLocal
	}

	a := newAction(plan, kind, cl, "deleted on "+source.String()+" side")

	if isDir {
		plan.Rmdirs = append(plan.Rmdirs, a)
	} else {
		plan.FileOps = append(plan.FileOps, a)
	}
}

// planConflict resolves a both-sides-changed entry. Convergent changes
// (both sides now identical) adopt a fresh baseline without conflict.
func (p *Planner) planConflict(ctx context.Context, plan *DirectoryPlan, cl Classification) error {
	pair := cl.Pair

	if bothPresent(pair) && p.classifier.entriesEqual(pair.Local, pair.Remote) {
		plan.FileOps = append(plan.FileOps, newAction(plan, ActionAdopt, cl, "both sides converged"))
		p.maybeRecurse(plan, cl)

		return nil
	}

	conflict := Conflict{
		Path:         path.Join(plan.Path, pair.Name),
		Local:        pair.Local,
		Remote:       pair.Remote,
		LocalChange:  cl.Local,
		RemoteChange: cl.Remote,
		Baseline:     cl.Baseline,
	}

	winner, err := p.resolver.Resolve(ctx, conflict)
	if err != nil && winner == WinnerSkip {
		// Declined resolutions degrade to skip; cancellation propagates.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	p.report.AddConflict(winner == WinnerSkip)

	switch winner {
	case WinnerSkip:
		p.addSkip(plan, cl, fmt.Sprintf("conflict (%s vs %s) unresolved", cl.Local, cl.Remote))

	case WinnerLocal:
		p.planWinner(plan, cl, WinnerLocal)

	case WinnerRemote:
		p.planWinner(plan, cl, WinnerRemote)
	}

	return nil
}

// planWinner emits the action realizing a conflict resolution: copy the
// winning side over, or propagate its deletion when the winner is the
// side that deleted.
func (p *Planner) planWinner(plan *DirectoryPlan, cl Classification, winner Winner) {
	pair := cl.Pair
	isDir := pairIsDir(pair)

	winnerEntry := pair.Local
	if winner == WinnerRemote {
		winnerEntry = pair.Remote
	}

	if winnerEntry == nil {
		// The winning side deleted the entry; the loser follows.
		p.planDeletion(plan, cl, winner, isDir)
		return
	}

	if isDir {
		if destMissing(pair, winner) {
			kind := ActionMkdirRemote
			if winner == WinnerRemote {
				kind = ActionMkdirLocal
			}

			plan.Mkdirs = append(plan.Mkdirs, newAction(plan, kind, cl, "conflict resolved: "+winner.String()+" wins"))
		}

		p.maybeRecurse(plan, cl)

		return
	}

	kind := ActionCopyToRemote
	if winner == WinnerRemote {
		kind = ActionCopyToLocal
	}

	plan.FileOps = append(plan.FileOps, newAction(plan, kind, cl, "conflict resolved: "+winner.String()+" wins"))
}

// maybeRecurse schedules descent into a directory pair after this level
// executes. One-way modes do not descend into directories that exist only
// on the ignored side.
func (p *Planner) maybeRecurse(plan *DirectoryPlan, cl Classification) {
	if !pairIsDir(cl.Pair) {
		return
	}

	switch p.mode {
	case ModeUpload:
		if cl.Pair.Local == nil {
			return
		}
	case ModeDownload:
		if cl.Pair.Remote == nil {
			return
		}
	}

	plan.Recurse = append(plan.Recurse, cl.Pair.Name)
}

// addSkip records a visible skip action.
func (p *Planner) addSkip(plan *DirectoryPlan, cl Classification, reason string) {
	plan.FileOps = append(plan.FileOps, newAction(plan, ActionSkip, cl, reason))
}

// newAction builds an Action from a classification within a plan.
func newAction(plan *DirectoryPlan, kind ActionKind, cl Classification, reason string) Action {
	return Action{
		Kind:   kind,
		Name:   cl.Pair.Name,
		Path:   path.Join(plan.Path, cl.Pair.Name),
		Reason: reason,
		Local:  cl.Pair.Local,
		Remote: cl.Pair.Remote,
	}
}

// pairIsDir reports whether either observed side is a directory.
func pairIsDir(pair PairedEntry) bool {
	if pair.Local != nil {
		return pair.Local.Kind == target.KindDir
	}

	if pair.Remote != nil {
		return pair.Remote.Kind == target.KindDir
	}

	return false
}

// destMissing reports whether the destination side of a propagation from
// the given source is currently absent.
func destMissing(pair PairedEntry, source Winner) bool {
	if source == WinnerLocal {
		return pair.Remote == nil
	}

	return pair.Local == nil
}
