// Package sync implements the tree synchronization engine: per-directory
// baseline tracking, pairing of local and remote listings, three-way change
// classification, conflict resolution, action planning, and execution.
// It produces correct results from file size and modification time alone —
// no content hashing and no remote-side bookkeeping.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/treesync/treesync/internal/target"
)

// Mode is the authoritative-direction policy for a run.
type Mode int

const (
	// ModeBidirectional propagates changes both ways and resolves conflicts.
	ModeBidirectional Mode = iota
	// ModeUpload treats the local tree as authoritative.
	ModeUpload
	// ModeDownload treats the remote tree as authoritative.
	ModeDownload
)

func (m Mode) String() string {
	switch m {
	case ModeUpload:
		return "upload"
	case ModeDownload:
		return "download"
	default:
		return "bidirectional"
	}
}

// ParseMode converts a config/CLI string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "bidirectional", "sync":
		return ModeBidirectional, nil
	case "upload":
		return ModeUpload, nil
	case "download":
		return ModeDownload, nil
	default:
		return 0, fmt.Errorf("unknown sync mode %q", s)
	}
}

// Strategy selects how conflicts are resolved without user interaction.
type Strategy int

const (
	// StrategySkip leaves conflicting entries untouched; they are reported
	// and re-evaluated on the next run.
	StrategySkip Strategy = iota
	StrategyLocalWins
	StrategyRemoteWins
	// StrategyNewerWins picks the side with the later modification time;
	// ties fall back to the local side.
	StrategyNewerWins
	// StrategyLargerWins picks the larger file; ties fall back to
	// StrategyNewerWins.
	StrategyLargerWins
	// StrategyInteractive defers each conflict to a decision callback.
	StrategyInteractive
)

func (s Strategy) String() string {
	switch s {
	case StrategyLocalWins:
		return "local"
	case StrategyRemoteWins:
		return "remote"
	case StrategyNewerWins:
		return "newer"
	case StrategyLargerWins:
		return "larger"
	case StrategyInteractive:
		return "interactive"
	default:
		return "skip"
	}
}

// ParseStrategy converts a config/CLI string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "skip":
		return StrategySkip, nil
	case "local":
		return StrategyLocalWins, nil
	case "remote":
		return StrategyRemoteWins, nil
	case "newer":
		return StrategyNewerWins, nil
	case "larger":
		return StrategyLargerWins, nil
	case "interactive", "ask":
		return StrategyInteractive, nil
	default:
		return 0, fmt.Errorf("unknown conflict strategy %q", s)
	}
}

// ChangeCategory is the per-side classification of one entry against its
// baseline. Derived each run, never persisted.
type ChangeCategory int

const (
	Unchanged ChangeCategory = iota
	Added
	Modified
	Deleted
)

func (c ChangeCategory) String() string {
	switch c {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// changed reports whether the category requires propagation.
func (c ChangeCategory) changed() bool {
	return c != Unchanged
}

// ActionKind is the concrete operation a planned Action performs.
type ActionKind int

const (
	ActionSkip ActionKind = iota
	ActionCopyToRemote
	ActionCopyToLocal
	ActionDeleteLocal
	ActionDeleteRemote
	ActionMkdirLocal
	ActionMkdirRemote
	ActionRmdirLocal
	ActionRmdirRemote
	// ActionAdopt records a baseline for an entry that is already identical
	// on both sides; no data moves.
	ActionAdopt
)

func (k ActionKind) String() string {
	switch k {
	case ActionCopyToRemote:
		return "copy-to-remote"
	case ActionCopyToLocal:
		return "copy-to-local"
	case ActionDeleteLocal:
		return "delete-local"
	case ActionDeleteRemote:
		return "delete-remote"
	case ActionMkdirLocal:
		return "mkdir-local"
	case ActionMkdirRemote:
		return "mkdir-remote"
	case ActionRmdirLocal:
		return "rmdir-local"
	case ActionRmdirRemote:
		return "rmdir-remote"
	case ActionAdopt:
		return "adopt"
	default:
		return "skip"
	}
}

// Action is one planned unit of work within a directory.
type Action struct {
	Kind ActionKind
	// Name is the entry name within its directory; Path is the
	// slash-separated path relative to the sync roots.
	Name string
	Path string
	// Reason explains skip decisions and conflict outcomes in reports.
	Reason string
	// Local and Remote carry the current observations that produced the
	// action; either may be nil for an absent side.
	Local  *target.Entry
	Remote *target.Entry
	// expanded marks child actions spliced in below a wholesale directory
	// removal; they carry no baseline of their own.
	expanded bool
}

// IsDir reports whether the action targets a directory node.
func (a *Action) IsDir() bool {
	if a.Local != nil {
		return a.Local.Kind == target.KindDir
	}

	if a.Remote != nil {
		return a.Remote.Kind == target.KindDir
	}

	return false
}

// PairedEntry is one name seen on either side of a directory, with the
// current observation per side (nil when absent).
type PairedEntry struct {
	Name   string
	Local  *target.Entry
	Remote *target.Entry
}

// Winner is a conflict resolution outcome.
type Winner int

const (
	WinnerSkip Winner = iota
	WinnerLocal
	WinnerRemote
)

func (w Winner) String() string {
	switch w {
	case WinnerLocal:
		return "local"
	case WinnerRemote:
		return "remote"
	default:
		return "skip"
	}
}

// Conflict describes an entry that changed incompatibly on both sides.
// It is handed to the resolver and, under the interactive strategy, to the
// caller's decision callback.
type Conflict struct {
	Path         string
	Local        *target.Entry
	Remote       *target.Entry
	LocalChange  ChangeCategory
	RemoteChange ChangeCategory
	// Baseline is nil for same-name first encounters.
	Baseline *BaselineRecord
}

// DecideFunc answers an interactive conflict. Returning an error declines
// the resolution; the entry is left unsynced and reported.
type DecideFunc func(ctx context.Context, c Conflict) (Winner, error)

// timeEqual compares two modification times, ignoring sub-second precision
// and any difference within the tolerance. Transports routinely truncate
// timestamps (FAT stores 2s granularity, FTP MDTM whole seconds), so exact
// comparison would flag every transferred file as modified.
func timeEqual(a, b time.Time, tolerance time.Duration) bool {
	at := a.Truncate(time.Second)
	bt := b.Truncate(time.Second)

	diff := at.Sub(bt)
	if diff < 0 {
		diff = -diff
	}

	return diff <= tolerance
}
