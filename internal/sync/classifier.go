package sync

import (
	"time"

	"github.com/treesync/treesync/internal/target"
)

// Classification is the outcome of comparing one paired entry against its
// baseline: a change category per side plus the flags the planner needs.
type Classification struct {
	Pair     PairedEntry
	Baseline *BaselineRecord

	Local  ChangeCategory
	Remote ChangeCategory

	// FirstEncounter marks an entry with no baseline.
	FirstEncounter bool
	// InSync marks a first encounter that is already identical on both
	// sides: a baseline is adopted without transferring anything.
	InSync bool
	// KindMismatch marks a file on one side colliding with a directory of
	// the same name on the other. No automatic action is safe.
	KindMismatch bool
}

// isConflict reports whether the pair needs resolution: both sides changed
// in ways with no deterministic single-source action.
func (c Classification) isConflict() bool {
	if c.KindMismatch {
		return false // handled as skip, not as a resolvable conflict
	}

	return c.Local.changed() && c.Remote.changed() && !c.InSync
}

// Classifier derives per-side change categories from current observations
// and the stored baseline. Pure computation, no I/O.
type Classifier struct {
	tolerance time.Duration
}

// NewClassifier builds a classifier with the given modification-time
// tolerance (see timeEqual).
func NewClassifier(tolerance time.Duration) *Classifier {
	return &Classifier{tolerance: tolerance}
}

// Classify compares one paired entry against its baseline (nil when never
// synced).
func (c *Classifier) Classify(pair PairedEntry, base *BaselineRecord) Classification {
	out := Classification{Pair: pair, Baseline: base}

	if bothPresent(pair) && pair.Local.Kind != pair.Remote.Kind {
		out.KindMismatch = true
		return out
	}

	if base == nil {
		return c.classifyFirstEncounter(out)
	}

	out.Local = c.classifySide(pair.Local, base.Local, base.IsDir())
	out.Remote = c.classifySide(pair.Remote, base.Remote, base.IsDir())

	return out
}

// classifyFirstEncounter handles entries with no baseline: presence on one
// side is an addition there; presence on both sides is either already-in-
// sync (identical size and mtime) or a same-name conflict.
func (c *Classifier) classifyFirstEncounter(out Classification) Classification {
	out.FirstEncounter = true
	pair := out.Pair

	switch {
	case pair.Local != nil && pair.Remote == nil:
		out.Local = Added

	case pair.Local == nil && pair.Remote != nil:
		out.Remote = Added

	case bothPresent(pair):
		if c.entriesEqual(pair.Local, pair.Remote) {
			out.InSync = true
			return out
		}

		// Both sides independently created this name with different
		// content indicators.
		out.Local = Added
		out.Remote = Added
	}

	return out
}

// classifySide compares one side's current observation against its stored
// baseline. Directories ignore size; their mtime carries little signal
// across protocols, so existence decides and recursion carries the rest.
func (c *Classifier) classifySide(cur *target.Entry, base SideBaseline, isDir bool) ChangeCategory {
	exists := cur != nil

	switch {
	case base.Existed && !exists:
		return Deleted

	case !base.Existed && exists:
		return Added

	case !base.Existed && !exists:
		return Unchanged
	}

	if (cur.Kind == target.KindDir) != isDir {
		// The entry was replaced by one of the other kind since the
		// baseline. That side changed; size and mtime carry no signal
		// across a kind switch.
		return Modified
	}

	if isDir {
		return Unchanged
	}

	if cur.Size != base.Size || !timeEqual(cur.ModTime, base.ModTime, c.tolerance) {
		return Modified
	}

	return Unchanged
}

// entriesEqual is the first-encounter identity check: same kind, and for
// files same size and modification time within tolerance. Directories
// match on existence alone.
func (c *Classifier) entriesEqual(a, b *target.Entry) bool {
	if a.Kind != b.Kind {
		return false
	}

	if a.Kind == target.KindDir {
		return true
	}

	return a.Size == b.Size && timeEqual(a.ModTime, b.ModTime, c.tolerance)
}

func bothPresent(pair PairedEntry) bool {
	return pair.Local != nil && pair.Remote != nil
}
