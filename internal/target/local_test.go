package target

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*Local, string) {
	t.Helper()

	root := t.TempDir()
	tgt := NewLocal(root)
	require.NoError(t, tgt.Connect(context.Background()))

	return tgt, root
}

func TestLocalConnectMissingRoot(t *testing.T) {
	tgt := NewLocal(filepath.Join(t.TempDir(), "nope"))

	err := tgt.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalListClassifiesEntries(t *testing.T) {
	tgt, root := newTestLocal(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link")))
	}

	entries, err := tgt.List(context.Background(), "")
	require.NoError(t, err)

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}

	require.Contains(t, byName, "a.txt")
	assert.Equal(t, KindFile, byName["a.txt"].Kind)
	assert.Equal(t, int64(5), byName["a.txt"].Size)

	require.Contains(t, byName, "sub")
	assert.Equal(t, KindDir, byName["sub"].Kind)

	if runtime.GOOS != "windows" {
		require.Contains(t, byName, "link")
		assert.Equal(t, KindUnsupported, byName["link"].Kind)
	}
}

func TestLocalStatNotFound(t *testing.T) {
	tgt, _ := newTestLocal(t)

	_, err := tgt.Stat(context.Background(), "missing.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "stat", terr.Op)
	assert.Equal(t, "missing.txt", terr.Path)
}

func TestLocalReadWriteRoundTrip(t *testing.T) {
	tgt, _ := newTestLocal(t)
	ctx := context.Background()

	w, err := tgt.OpenWrite(ctx, "out.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := tgt.OpenRead(ctx, "out.bin")
	require.NoError(t, err)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "payload", string(data))

	e, err := tgt.Stat(ctx, "out.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.Size)
}

func TestLocalSetModTime(t *testing.T) {
	tgt, root := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644))

	want := time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)
	require.NoError(t, tgt.SetModTime(ctx, "f", want))

	e, err := tgt.Stat(ctx, "f")
	require.NoError(t, err)
	assert.True(t, e.ModTime.Equal(want), "got %v want %v", e.ModTime, want)
}

func TestLocalRmdirNonEmptyFails(t *testing.T) {
	tgt, root := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, os.Mkdir(filepath.Join(root, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "f"), []byte("x"), 0o644))

	require.Error(t, tgt.Rmdir(ctx, "d"))

	require.NoError(t, tgt.Delete(ctx, "d/f"))
	require.NoError(t, tgt.Rmdir(ctx, "d"))

	_, err := tgt.Stat(ctx, "d")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalHonorsCancelledContext(t *testing.T) {
	tgt, _ := newTestLocal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tgt.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
