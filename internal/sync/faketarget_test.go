package sync

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/treesync/treesync/internal/target"
)

// fakeErr builds a classified target error the way the real adapters do.
func fakeErr(op, p string, kind error) error {
	return &target.Error{Op: op, Path: p, Kind: kind, Err: os.ErrInvalid}
}

// fakeTarget is an in-memory Target for engine tests. It records every
// mutating call in order so tests can assert on execution ordering.
type fakeTarget struct {
	mu    sync.Mutex
	name  string
	dirs  map[string]bool
	files map[string]*fakeFile

	// calls lists mutating operations as "op path" strings.
	calls []string

	// failures maps "op path" to an injected error.
	failures map[string]error
}

type fakeFile struct {
	data    []byte
	modTime time.Time
}

func newFakeTarget(name string) *fakeTarget {
	return &fakeTarget{
		name:     name,
		dirs:     map[string]bool{"": true},
		files:    map[string]*fakeFile{},
		failures: map[string]error{},
	}
}

func (f *fakeTarget) seedFile(p, data string, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}

	f.ensureDir(dir)
	f.files[p] = &fakeFile{data: []byte(data), modTime: modTime}
}

func (f *fakeTarget) seedDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureDir(p)
}

// ensureDir creates a directory and its ancestors. Callers hold mu.
func (f *fakeTarget) ensureDir(p string) {
	for p != "" && p != "." {
		f.dirs[p] = true
		p = path.Dir(p)
		if p == "." {
			p = ""
		}
	}
}

func (f *fakeTarget) record(op, p string) error {
	f.calls = append(f.calls, op+" "+p)
	return f.failures[op+" "+p]
}

func (f *fakeTarget) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeTarget) Connect(ctx context.Context) error { return nil }
func (f *fakeTarget) Close() error                      { return nil }
func (f *fakeTarget) String() string                    { return f.name }

func (f *fakeTarget) List(ctx context.Context, dirPath string) ([]target.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failures["list "+dirPath]; err != nil {
		return nil, err
	}

	if !f.dirs[dirPath] {
		return nil, fakeErr("list", dirPath, target.ErrNotFound)
	}

	var entries []target.Entry

	for p, file := range f.files {
		if childOf(p, dirPath) {
			entries = append(entries, target.Entry{
				Name:    path.Base(p),
				Kind:    target.KindFile,
				Size:    int64(len(file.data)),
				ModTime: file.modTime,
			})
		}
	}

	for p := range f.dirs {
		if p != "" && childOf(p, dirPath) {
			entries = append(entries, target.Entry{
				Name: path.Base(p),
				Kind: target.KindDir,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

func childOf(p, dir string) bool {
	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}

	return parent == dir
}

func (f *fakeTarget) Stat(ctx context.Context, p string) (target.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if file, ok := f.files[p]; ok {
		return target.Entry{
			Name:    path.Base(p),
			Kind:    target.KindFile,
			Size:    int64(len(file.data)),
			ModTime: file.modTime,
		}, nil
	}

	if f.dirs[p] {
		return target.Entry{Name: path.Base(p), Kind: target.KindDir}, nil
	}

	return target.Entry{}, fakeErr("stat", p, target.ErrNotFound)
}

func (f *fakeTarget) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[p]
	if !ok {
		return nil, fakeErr("read", p, target.ErrNotFound)
	}

	return io.NopCloser(bytes.NewReader(file.data)), nil
}

func (f *fakeTarget) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("write", p); err != nil {
		return nil, err
	}

	return &fakeWriter{target: f, path: p}, nil
}

type fakeWriter struct {
	target *fakeTarget
	path   string
	buf    bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.target.mu.Lock()
	defer w.target.mu.Unlock()

	w.target.files[w.path] = &fakeFile{
		data:    append([]byte(nil), w.buf.Bytes()...),
		modTime: time.Now(),
	}

	return nil
}

func (f *fakeTarget) Mkdir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("mkdir", p); err != nil {
		return err
	}

	f.dirs[p] = true

	return nil
}

func (f *fakeTarget) Rmdir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("rmdir", p); err != nil {
		return err
	}

	for fp := range f.files {
		if strings.HasPrefix(fp, p+"/") {
			return fakeErr("rmdir", p, target.ErrProtocol)
		}
	}

	for dp := range f.dirs {
		if strings.HasPrefix(dp, p+"/") {
			return fakeErr("rmdir", p, target.ErrProtocol)
		}
	}

	delete(f.dirs, p)

	return nil
}

func (f *fakeTarget) Delete(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("delete", p); err != nil {
		return err
	}

	if _, ok := f.files[p]; !ok {
		return fakeErr("delete", p, target.ErrNotFound)
	}

	delete(f.files, p)

	return nil
}

func (f *fakeTarget) SetModTime(ctx context.Context, p string, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if file, ok := f.files[p]; ok {
		file.modTime = mtime
	}

	return nil
}

// removeFile drops a file without recording a call, simulating an
// out-of-band change between runs.
func (f *fakeTarget) removeFile(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.files, p)
}

// removeTree drops a directory and everything beneath it out-of-band.
func (f *fakeTarget) removeTree(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.dirs, p)

	for fp := range f.files {
		if strings.HasPrefix(fp, p+"/") {
			delete(f.files, fp)
		}
	}

	for dp := range f.dirs {
		if strings.HasPrefix(dp, p+"/") {
			delete(f.dirs, dp)
		}
	}
}

func (f *fakeTarget) content(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[p]
	if !ok {
		return "", false
	}

	return string(file.data), true
}

func (f *fakeTarget) hasDir(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dirs[p]
}

// memStore is an in-memory MetadataStore.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*DirectoryRecord
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]*DirectoryRecord{}}
}

func (s *memStore) Load(dirPath string) *DirectoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[dirPath]
	if !ok {
		return newDirectoryRecord(dirPath)
	}

	// Copy so executor mutations only land via Save.
	out := newDirectoryRecord(dirPath)
	for name, base := range rec.Entries {
		b := *base
		out.Entries[name] = &b
	}

	return out
}

func (s *memStore) Save(dirPath string, rec *DirectoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := newDirectoryRecord(dirPath)
	for name, base := range rec.Entries {
		b := *base
		out.Entries[name] = &b
	}

	s.recs[dirPath] = out

	return nil
}

func (s *memStore) baseline(dirPath, name string) *BaselineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[dirPath]
	if !ok {
		return nil
	}

	return rec.Entries[name]
}
