package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundtrip(t *testing.T) {
	root := t.TempDir()
	store := NewFileMetadataStore(root, nil)

	rec := newDirectoryRecord("")
	rec.Update("a.txt", &BaselineRecord{
		Kind:     "file",
		Local:    SideBaseline{Size: 9, ModTime: baseTime, Existed: true},
		Remote:   SideBaseline{Size: 9, ModTime: baseTime, Existed: true},
		LastSync: baseTime,
	})

	require.NoError(t, store.Save("", rec))

	loaded := store.Load("")
	base := loaded.Get("a.txt")

	require.NotNil(t, base)
	assert.Equal(t, int64(9), base.Local.Size)
	assert.True(t, base.Local.ModTime.Equal(baseTime))
	assert.True(t, base.Remote.Existed)
}

func TestMetadataMissingFileLoadsEmpty(t *testing.T) {
	store := NewFileMetadataStore(t.TempDir(), nil)

	rec := store.Load("sub/dir")

	require.NotNil(t, rec)
	assert.Empty(t, rec.Entries)
	assert.Nil(t, rec.Get("anything"))
}

func TestMetadataCorruptFileLoadsEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, MetaFileName), []byte("{not json"), 0o644))

	store := NewFileMetadataStore(root, nil)
	rec := store.Load("")

	require.NotNil(t, rec)
	assert.Empty(t, rec.Entries)
}

func TestMetadataUnknownVersionLoadsEmpty(t *testing.T) {
	root := t.TempDir()
	data := `{"version": 99, "entries": {"a.txt": {"kind": "file"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, MetaFileName), []byte(data), 0o644))

	store := NewFileMetadataStore(root, nil)
	rec := store.Load("")

	assert.Empty(t, rec.Entries)
}

func TestMetadataEmptyRecordRemovesFile(t *testing.T) {
	root := t.TempDir()
	store := NewFileMetadataStore(root, nil)

	rec := newDirectoryRecord("")
	rec.Update("a.txt", &BaselineRecord{Kind: "file", LastSync: time.Now()})
	require.NoError(t, store.Save("", rec))

	metaPath := filepath.Join(root, MetaFileName)
	_, err := os.Stat(metaPath)
	require.NoError(t, err)

	rec.Remove("a.txt")
	require.NoError(t, store.Save("", rec))

	_, err = os.Stat(metaPath)
	assert.True(t, os.IsNotExist(err))
}

func TestMetadataSubdirectoryPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "dir"), 0o755))

	store := NewFileMetadataStore(root, nil)

	rec := newDirectoryRecord("sub/dir")
	rec.Update("b.txt", &BaselineRecord{Kind: "file", LastSync: baseTime})
	require.NoError(t, store.Save("sub/dir", rec))

	_, err := os.Stat(filepath.Join(root, "sub", "dir", MetaFileName))
	require.NoError(t, err)

	loaded := store.Load("sub/dir")
	assert.NotNil(t, loaded.Get("b.txt"))
}
