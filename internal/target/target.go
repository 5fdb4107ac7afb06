// Package target provides uniform access to one file tree — local
// filesystem, FTP, FTPS, or SFTP — behind a single capability interface
// with stable error classification. The sync engine never sees a concrete
// protocol; adapters are swappable without touching engine code.
package target

import (
	"context"
	"io"
	"time"
)

// EntryKind classifies a directory entry.
type EntryKind int

const (
	// KindFile is a regular file.
	KindFile EntryKind = iota
	// KindDir is a directory.
	KindDir
	// KindUnsupported covers symlinks, sockets, devices, and anything else
	// the engine refuses to treat as a file or directory.
	KindUnsupported
)

// String returns the kind as a lowercase word for logs and reports.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	default:
		return "unsupported"
	}
}

// Entry is one observed directory entry on one side. Size is meaningful for
// files only. ModTime is always UTC; adapters convert on the way in.
type Entry struct {
	Name    string
	Kind    EntryKind
	Size    int64
	ModTime time.Time
}

// Target is the capability interface over one tree. All paths are
// slash-separated and relative to the target's root. Implementations
// classify failures with the error kinds in errors.go and must honor
// context cancellation on every call.
//
// A Target backed by a single protocol connection is not required to be
// safe for concurrent use from multiple goroutines; such adapters serialize
// internally instead (see ftp.go). The engine relies on that.
type Target interface {
	// Connect establishes the underlying connection. It must be called
	// before any other operation and is fatal to the run when it fails.
	Connect(ctx context.Context) error
	// Close releases the connection. Safe to call on a never-connected or
	// already-closed target.
	Close() error

	// List returns the entries of a directory, unordered.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Stat returns the entry for a single path.
	Stat(ctx context.Context, path string) (Entry, error)

	// OpenRead opens a file for reading.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)
	// OpenWrite opens a file for writing, truncating any existing content.
	// The write is complete only once Close returns nil.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)

	Mkdir(ctx context.Context, dir string) error
	// Rmdir removes an empty directory. It fails on a non-empty one; the
	// executor removes children first.
	Rmdir(ctx context.Context, dir string) error
	Delete(ctx context.Context, path string) error

	// SetModTime stamps a file's modification time after a transfer so both
	// sides agree on the baseline timestamp. Adapters that cannot set times
	// return an error of kind Unsupported; the engine then falls back to the
	// observed time.
	SetModTime(ctx context.Context, path string, mtime time.Time) error

	// String identifies the target for logs, e.g. "ftp://host/path".
	String() string
}
