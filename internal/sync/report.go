package sync

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ActionRecord is one executed (or dry-run) action as it appears in the
// run report, in execution order.
type ActionRecord struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Reason string `json:"reason,omitempty"`
}

// EntryError is a per-entry failure that did not abort the run.
type EntryError struct {
	Path string `json:"path"`
	Op   string `json:"op"`
	Err  string `json:"error"`
}

// Stats aggregates counters over one run.
type Stats struct {
	EntriesSeen      int   `json:"entries_seen"`
	DirsVisited      int   `json:"dirs_visited"`
	FilesCopied      int   `json:"files_copied"`
	FilesDeleted     int   `json:"files_deleted"`
	DirsCreated      int   `json:"dirs_created"`
	DirsDeleted      int   `json:"dirs_deleted"`
	Adopted          int   `json:"adopted"`
	Skipped          int   `json:"skipped"`
	Conflicts        int   `json:"conflicts"`
	ConflictsSkipped int   `json:"conflicts_skipped"`
	BytesUploaded    int64 `json:"bytes_uploaded"`
	BytesDownloaded  int64 `json:"bytes_downloaded"`
}

// Report collects the outcome of one sync run. It is safe for concurrent
// use; the executor records from parallel transfer goroutines.
type Report struct {
	RunID     string        `json:"run_id"`
	Mode      string        `json:"mode"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Stats    Stats          `json:"stats"`
	Actions  []ActionRecord `json:"actions"`
	Errors   []EntryError   `json:"errors"`
	Warnings []string       `json:"warnings"`

	mu sync.Mutex
}

// NewReport starts a report for a run in the given mode.
func NewReport(mode Mode, dryRun bool) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Mode:      mode.String(),
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the elapsed time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Elapsed = time.Since(r.StartedAt)
}

// AddAction appends an executed action and bumps the matching counters.
func (r *Report) AddAction(a *Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Actions = append(r.Actions, ActionRecord{
		Kind:   a.Kind.String(),
		Path:   a.Path,
		Reason: a.Reason,
	})

	switch a.Kind {
	case ActionCopyToRemote, ActionCopyToLocal:
		r.Stats.FilesCopied++
	case ActionDeleteLocal, ActionDeleteRemote:
		if a.IsDir() {
			r.Stats.DirsDeleted++
		} else {
			r.Stats.FilesDeleted++
		}
	case ActionMkdirLocal, ActionMkdirRemote:
		r.Stats.DirsCreated++
	case ActionRmdirLocal, ActionRmdirRemote:
		r.Stats.DirsDeleted++
	case ActionAdopt:
		r.Stats.Adopted++
	case ActionSkip:
		r.Stats.Skipped++
	}
}

// AddBytes accounts transferred payload in the given direction.
func (r *Report) AddBytes(kind ActionKind, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == ActionCopyToRemote {
		r.Stats.BytesUploaded += n
	} else {
		r.Stats.BytesDownloaded += n
	}
}

// AddConflict counts a detected conflict; skipped marks it unresolved.
func (r *Report) AddConflict(skipped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Stats.Conflicts++
	if skipped {
		r.Stats.ConflictsSkipped++
	}
}

// AddSeen counts entries observed by the walker.
func (r *Report) AddSeen(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Stats.EntriesSeen += n
}

// AddDirVisited counts one directory pass.
func (r *Report) AddDirVisited() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Stats.DirsVisited++
}

// AddError records a per-entry failure.
func (r *Report) AddError(path, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Errors = append(r.Errors, EntryError{Path: path, Op: op, Err: err.Error()})
}

// AddWarning records a non-fatal condition worth surfacing.
func (r *Report) AddWarning(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// HasFailures reports whether any entry failed or any conflict was left
// unresolved — the conditions that should fail a scripted run.
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Errors) > 0 || r.Stats.ConflictsSkipped > 0
}

// Summary renders a human-readable run summary.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder

	prefix := ""
	if r.DryRun {
		prefix = "(dry-run) "
	}

	fmt.Fprintf(&b, "%s%s sync: %d entries in %d directories, %s elapsed\n",
		prefix, r.Mode, r.Stats.EntriesSeen, r.Stats.DirsVisited, r.Elapsed.Round(10*time.Millisecond))
	fmt.Fprintf(&b, "  copied %d files (%s up, %s down), created %d dirs\n",
		r.Stats.FilesCopied,
		humanize.Bytes(uint64(max(r.Stats.BytesUploaded, 0))),
		humanize.Bytes(uint64(max(r.Stats.BytesDownloaded, 0))),
		r.Stats.DirsCreated)
	fmt.Fprintf(&b, "  deleted %d files, %d dirs; adopted %d, skipped %d\n",
		r.Stats.FilesDeleted, r.Stats.DirsDeleted, r.Stats.Adopted, r.Stats.Skipped)
	fmt.Fprintf(&b, "  conflicts: %d (%d unresolved), errors: %d, warnings: %d",
		r.Stats.Conflicts, r.Stats.ConflictsSkipped, len(r.Errors), len(r.Warnings))

	return b.String()
}
