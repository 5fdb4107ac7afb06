package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/treesync/treesync/internal/target"
)

// lockStaleAfter is the age past which a leftover remote lock is assumed
// to belong to a crashed run and may be replaced.
const lockStaleAfter = time.Hour

// ErrLocked reports a remote tree already claimed by another writable run.
var ErrLocked = errors.New("sync: remote tree is locked by another run")

// lockRecord is the payload of the remote lock file.
type lockRecord struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// remoteLock claims a remote tree for the duration of a writable run by
// placing a lock file at its root. Advisory: targets offer no atomic
// create, so two simultaneous runs can race past it, but the common case
// of a forgotten concurrent run is caught.
type remoteLock struct {
	target target.Target
	runID  string
	logger *slog.Logger

	held bool
}

func newRemoteLock(t target.Target, runID string, logger *slog.Logger) *remoteLock {
	if logger == nil {
		logger = slog.Default()
	}

	return &remoteLock{target: t, runID: runID, logger: logger}
}

// Acquire writes the lock file, refusing when a fresh lock from another
// run is present. force replaces any existing lock; stale locks are
// replaced with a warning.
func (l *remoteLock) Acquire(ctx context.Context, mode Mode, force bool) error {
	existing, err := l.read(ctx)
	if err != nil {
		return err
	}

	if existing != nil && !force {
		age := time.Since(existing.CreatedAt)
		if age < lockStaleAfter {
			return fmt.Errorf("%w (host %s, pid %d, started %s ago)",
				ErrLocked, existing.Hostname, existing.PID, age.Round(time.Second))
		}

		l.logger.Warn("replacing stale remote lock",
			slog.String("hostname", existing.Hostname),
			slog.Int("pid", existing.PID),
			slog.Duration("age", age.Round(time.Second)),
		)
	}

	hostname, _ := os.Hostname()

	rec := lockRecord{
		RunID:     l.runID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		Mode:      mode.String(),
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock record: %w", err)
	}

	w, err := l.target.OpenWrite(ctx, LockFileName)
	if err != nil {
		return fmt.Errorf("writing remote lock: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing remote lock: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("writing remote lock: %w", err)
	}

	l.held = true

	return nil
}

// Release removes the lock file. Best effort; a leftover lock goes stale
// and gets replaced by the next run.
func (l *remoteLock) Release(ctx context.Context) {
	if !l.held {
		return
	}

	l.held = false

	if err := l.target.Delete(ctx, LockFileName); err != nil && !errors.Is(err, target.ErrNotFound) {
		l.logger.Warn("could not remove remote lock",
			slog.Any("error", err),
		)
	}
}

// read loads the current lock record, nil when absent or unparseable (an
// unreadable lock is treated as absent rather than wedging every run).
func (l *remoteLock) read(ctx context.Context) (*lockRecord, error) {
	r, err := l.target.OpenRead(ctx, LockFileName)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading remote lock: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading remote lock: %w", err)
	}

	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn("remote lock file unparseable, ignoring it",
			slog.Any("error", err),
		)

		return nil, nil
	}

	return &rec, nil
}
