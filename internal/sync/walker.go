package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/treesync/treesync/internal/target"
)

// errCaseCollision marks a directory whose listing contains names that
// differ only in case. Exact-byte matching cannot pair such a directory
// deterministically against a case-insensitive peer, so it is skipped.
var errCaseCollision = errors.New("sync: directory contains names differing only in case")

// Walker produces the paired, name-keyed entry list for one directory
// level, asking both targets for their current entries. Pairing is by
// exact byte equality of names; no normalization, which trades
// cross-platform cleverness for deterministic conflict detection.
type Walker struct {
	local  target.Target
	remote target.Target
	filter *Filter
	report *Report
	logger *slog.Logger
}

// NewWalker builds a walker over the two targets.
func NewWalker(local, remote target.Target, filter *Filter, report *Report, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Walker{local: local, remote: remote, filter: filter, report: report, logger: logger}
}

// PairDirectory lists both sides of one directory and merges the listings
// into one record per distinct name, ordered by name. A side where the
// directory does not exist contributes no entries. Unsupported entries
// (symlinks, devices) and filtered names are dropped with a recorded
// warning or debug log respectively.
func (w *Walker) PairDirectory(ctx context.Context, relPath string) ([]PairedEntry, error) {
	localEntries, err := w.listSide(ctx, w.local, relPath)
	if err != nil {
		return nil, fmt.Errorf("listing local %s: %w", relPath, err)
	}

	remoteEntries, err := w.listSide(ctx, w.remote, relPath)
	if err != nil {
		return nil, fmt.Errorf("listing remote %s: %w", relPath, err)
	}

	w.report.AddSeen(len(localEntries) + len(remoteEntries))

	localMap, err := w.entryMap(localEntries, relPath, "local")
	if err != nil {
		return nil, err
	}

	remoteMap, err := w.entryMap(remoteEntries, relPath, "remote")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(localMap)+len(remoteMap))
	for name := range localMap {
		names = append(names, name)
	}

	for name := range remoteMap {
		if _, seen := localMap[name]; !seen {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	pairs := make([]PairedEntry, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, PairedEntry{
			Name:   name,
			Local:  localMap[name],
			Remote: remoteMap[name],
		})
	}

	return pairs, nil
}

// listSide returns a directory's entries, treating an absent sub-directory
// as empty. An absent root propagates: a tree whose root vanished is
// unreachable, and mapping it to "empty" would classify every baselined
// entry as deleted on that side.
func (w *Walker) listSide(ctx context.Context, t target.Target, relPath string) ([]target.Entry, error) {
	entries, err := t.List(ctx, relPath)
	if err != nil {
		if relPath != "" && errors.Is(err, target.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return entries, nil
}

// entryMap indexes entries by name, dropping unsupported and filtered ones
// and detecting case collisions.
func (w *Walker) entryMap(entries []target.Entry, relPath, side string) (map[string]*target.Entry, error) {
	byName := make(map[string]*target.Entry, len(entries))
	lowered := make(map[string]string, len(entries))

	for i := range entries {
		e := &entries[i]

		if e.Kind == target.KindUnsupported {
			w.report.AddWarning("skipping unsupported entry %s (%s side)", path.Join(relPath, e.Name), side)
			continue
		}

		if res := w.filter.ShouldSync(e.Name, e.Kind == target.KindDir); !res.Included {
			w.logger.Debug("filtered out",
				slog.String("path", path.Join(relPath, e.Name)),
				slog.String("side", side),
				slog.String("reason", res.Reason),
			)

			continue
		}

		if prev, clash := lowered[lowerASCII(e.Name)]; clash && prev != e.Name {
			return nil, fmt.Errorf("%w: %q vs %q in %s (%s side)",
				errCaseCollision, prev, e.Name, relPath, side)
		}

		lowered[lowerASCII(e.Name)] = e.Name
		byName[e.Name] = e
	}

	return byName, nil
}

// lowerASCII folds ASCII letters only. Anything beyond ASCII keeps its
// bytes: the engine matches names byte-for-byte and this fold exists just
// to catch the common FAT/NTFS collision trap.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}
