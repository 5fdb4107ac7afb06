package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/treesync/treesync/internal/target"
)

// Metadata file names. Both are excluded from pairing and never transferred.
const (
	// MetaFileName holds one DirectoryRecord, stored inside the local
	// directory it describes. The remote side carries no bookkeeping.
	MetaFileName = ".treesync-meta.json"
	// LockFileName marks a remote tree as in use by a writable run.
	LockFileName = ".treesync-lock.json"
)

// metaSchemaVersion tags the on-disk record format. Unknown versions load
// as empty records, which degrades every entry to a first encounter rather
// than failing the run.
const metaSchemaVersion = 1

// SideBaseline is the last-synced observation of one entry on one side.
type SideBaseline struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	Existed bool      `json:"existed"`
}

// BaselineRecord is the last-synced snapshot of one entry on both sides.
// Its absence means the entry has never been synced.
type BaselineRecord struct {
	Kind     string       `json:"kind"` // "file" or "directory"
	Local    SideBaseline `json:"local"`
	Remote   SideBaseline `json:"remote"`
	LastSync time.Time    `json:"last_sync"`
}

// IsDir reports whether the baseline describes a directory node.
func (b *BaselineRecord) IsDir() bool {
	return b.Kind == target.KindDir.String()
}

// DirectoryRecord is the persisted unit: every baselined entry of one
// synchronized directory.
type DirectoryRecord struct {
	Version int                        `json:"version"`
	Path    string                     `json:"path"`
	Entries map[string]*BaselineRecord `json:"entries"`
}

// newDirectoryRecord returns an empty record for a directory path.
func newDirectoryRecord(path string) *DirectoryRecord {
	return &DirectoryRecord{
		Version: metaSchemaVersion,
		Path:    path,
		Entries: map[string]*BaselineRecord{},
	}
}

// Get returns the baseline for a name, or nil when never synced.
func (r *DirectoryRecord) Get(name string) *BaselineRecord {
	return r.Entries[name]
}

// Update replaces the baseline for a name.
func (r *DirectoryRecord) Update(name string, rec *BaselineRecord) {
	r.Entries[name] = rec
}

// Remove drops the baseline for a name. Dropping the record is what makes
// the absence of an entry mean "never existed" again.
func (r *DirectoryRecord) Remove(name string) {
	delete(r.Entries, name)
}

// MetadataStore persists DirectoryRecords. Load never fails for a missing
// or unreadable record: it returns an empty one so classification degrades
// to first encounter instead of risking data loss.
type MetadataStore interface {
	Load(dirPath string) *DirectoryRecord
	Save(dirPath string, rec *DirectoryRecord) error
}

// FileMetadataStore keeps one JSON metadata file inside each synchronized
// local directory, written atomically (temp file + rename).
type FileMetadataStore struct {
	root   string // absolute local root
	logger *slog.Logger
}

// NewFileMetadataStore creates a store rooted at the local sync directory.
func NewFileMetadataStore(root string, logger *slog.Logger) *FileMetadataStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileMetadataStore{root: root, logger: logger}
}

func (s *FileMetadataStore) Load(dirPath string) *DirectoryRecord {
	rec := newDirectoryRecord(dirPath)

	data, err := os.ReadFile(s.metaPath(dirPath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("metadata unreadable, treating directory as never synced",
				slog.String("dir", dirPath),
				slog.Any("error", err),
			)
		}

		return rec
	}

	var loaded DirectoryRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("metadata corrupt, treating directory as never synced",
			slog.String("dir", dirPath),
			slog.Any("error", err),
		)

		return rec
	}

	if loaded.Version != metaSchemaVersion {
		s.logger.Warn("metadata schema version not recognized, treating directory as never synced",
			slog.String("dir", dirPath),
			slog.Int("version", loaded.Version),
		)

		return rec
	}

	if loaded.Entries == nil {
		loaded.Entries = map[string]*BaselineRecord{}
	}

	loaded.Path = dirPath

	return &loaded
}

func (s *FileMetadataStore) Save(dirPath string, rec *DirectoryRecord) error {
	metaPath := s.metaPath(dirPath)

	// An empty record carries no information; remove the file instead of
	// littering synced trees with stubs.
	if len(rec.Entries) == 0 {
		if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing empty metadata for %s: %w", dirPath, err)
		}

		return nil
	}

	rec.Version = metaSchemaVersion
	rec.Path = dirPath

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", dirPath, err)
	}

	// Atomic replace: a crash mid-write leaves the previous record intact.
	tmp, err := os.CreateTemp(filepath.Dir(metaPath), MetaFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating metadata temp file for %s: %w", dirPath, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("writing metadata for %s: %w", dirPath, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing metadata temp file for %s: %w", dirPath, err)
	}

	if err := os.Rename(tmpName, metaPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing metadata for %s: %w", dirPath, err)
	}

	return nil
}

// metaPath maps a slash-separated relative directory to its metadata file.
func (s *FileMetadataStore) metaPath(dirPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(dirPath), MetaFileName)
}
