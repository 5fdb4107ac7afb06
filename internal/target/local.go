package target

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// filePermissions is the mode for newly written files; dirPermissions for
// created directories. Permission preservation is out of scope, so every
// write uses these fixed modes.
const (
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// Local is a Target over a local filesystem directory. It is safe for
// concurrent use; the OS serializes what needs serializing.
type Local struct {
	root string
}

// NewLocal creates a local filesystem target rooted at the given directory.
// The directory must exist by the time Connect is called.
func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

// Connect verifies the root exists and is a directory.
func (t *Local) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(t.root)
	if err != nil {
		return newError("connect", t.root, classifyOSError(err), err)
	}

	if !info.IsDir() {
		return newError("connect", t.root, ErrProtocol, errNotDirectory(t.root))
	}

	return nil
}

// Close is a no-op for local filesystems.
func (t *Local) Close() error { return nil }

func (t *Local) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(t.abs(dir))
	if err != nil {
		return nil, newError("list", dir, classifyOSError(err), err)
	}

	entries := make([]Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		// Lstat semantics: symlinks keep their link type instead of being
		// followed, so they classify as unsupported rather than as their
		// target.
		info, err := de.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info. Treat as absent.
			continue
		}

		entries = append(entries, entryFromInfo(de.Name(), info))
	}

	return entries, nil
}

func (t *Local) Stat(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	info, err := os.Lstat(t.abs(path))
	if err != nil {
		return Entry{}, newError("stat", path, classifyOSError(err), err)
	}

	return entryFromInfo(filepath.Base(path), info), nil
}

func (t *Local) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(t.abs(path))
	if err != nil {
		return nil, newError("read", path, classifyOSError(err), err)
	}

	return f, nil
}

func (t *Local) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(t.abs(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions)
	if err != nil {
		return nil, newError("write", path, classifyOSError(err), err)
	}

	return f, nil
}

func (t *Local) Mkdir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Mkdir(t.abs(dir), dirPermissions); err != nil {
		return newError("mkdir", dir, classifyOSError(err), err)
	}

	return nil
}

func (t *Local) Rmdir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// os.Remove on a directory fails when non-empty, which is exactly the
	// contract: the executor deletes children first.
	if err := os.Remove(t.abs(dir)); err != nil {
		return newError("rmdir", dir, classifyOSError(err), err)
	}

	return nil
}

func (t *Local) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(t.abs(path)); err != nil {
		return newError("delete", path, classifyOSError(err), err)
	}

	return nil
}

func (t *Local) SetModTime(ctx context.Context, path string, mtime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Chtimes(t.abs(path), mtime, mtime); err != nil {
		return newError("settime", path, classifyOSError(err), err)
	}

	return nil
}

func (t *Local) String() string {
	return t.root
}

// Root returns the absolute root directory. The metadata store and the
// watch command need the real filesystem location.
func (t *Local) Root() string {
	return t.root
}

// abs maps a slash-separated relative path onto the root directory.
func (t *Local) abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// entryFromInfo converts an os.FileInfo into an Entry, classifying anything
// that is neither a regular file nor a directory as unsupported.
func entryFromInfo(name string, info fs.FileInfo) Entry {
	e := Entry{
		Name:    name,
		ModTime: info.ModTime().UTC(),
	}

	switch {
	case info.Mode().IsRegular():
		e.Kind = KindFile
		e.Size = info.Size()
	case info.IsDir():
		e.Kind = KindDir
	default:
		e.Kind = KindUnsupported
	}

	return e
}

// classifyOSError maps an os-level error to a sentinel kind.
func classifyOSError(err error) error {
	switch {
	case os.IsNotExist(err):
		return ErrNotFound
	case os.IsPermission(err):
		return ErrPermissionDenied
	case os.IsTimeout(err):
		return ErrTimeout
	default:
		return ErrProtocol
	}
}

type errNotDirectory string

func (e errNotDirectory) Error() string {
	return "not a directory: " + string(e)
}
