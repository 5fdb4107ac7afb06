package sync

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesync/treesync/internal/target"
)

func runEngine(t *testing.T, local, remote *fakeTarget, store MetadataStore, opts Options) *Report {
	t.Helper()

	engine, err := NewEngine(local, remote, store, opts, nil)
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	return report
}

// mutations filters a fake target's call log down to tree mutations,
// dropping the run's own lock bookkeeping.
func mutations(calls []string) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		if strings.HasSuffix(c, " "+LockFileName) {
			continue
		}

		out = append(out, c)
	}

	return out
}

func TestEngineFirstRunCopiesAndBaselines(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "hello", baseTime)

	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	got, ok := remote.content("a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", got)

	assert.Equal(t, 1, report.Stats.FilesCopied)
	assert.Equal(t, int64(5), report.Stats.BytesUploaded)

	base := store.baseline("", "a.txt")
	require.NotNil(t, base)
	assert.True(t, base.Local.Existed)
	assert.True(t, base.Remote.Existed)
}

func TestEngineIdempotentSecondRun(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "hello", baseTime)
	local.seedFile("docs/b.txt", "world", baseTime)

	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	localBefore := len(mutations(local.callLog()))
	remoteBefore := len(mutations(remote.callLog()))

	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	assert.Len(t, mutations(local.callLog()), localBefore)
	assert.Len(t, mutations(remote.callLog()), remoteBefore)
	assert.Zero(t, report.Stats.FilesCopied)
	assert.Zero(t, report.Stats.DirsCreated)
}

func TestEngineLocalModificationPropagates(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "version 1", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	local.seedFile("a.txt", "version 2 -- longer", baseTime.Add(time.Hour))
	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	got, _ := remote.content("a.txt")
	assert.Equal(t, "version 2 -- longer", got)
	assert.Equal(t, 1, report.Stats.FilesCopied)
}

func TestEngineRemoteDeletionPropagates(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "hello", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	remote.removeFile("a.txt")
	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	_, ok := local.content("a.txt")
	assert.False(t, ok)
	assert.Equal(t, 1, report.Stats.FilesDeleted)
	assert.Nil(t, store.baseline("", "a.txt"))
}

func TestEngineUploadIgnoresRemoteChanges(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "local", baseTime)
	remote.seedFile("b.txt", "remote only", baseTime)

	report := runEngine(t, local, remote, store, Options{Mode: ModeUpload})

	// a.txt uploaded; b.txt neither downloaded nor deleted nor baselined.
	_, ok := remote.content("a.txt")
	assert.True(t, ok)

	_, ok = local.content("b.txt")
	assert.False(t, ok)

	got, _ := remote.content("b.txt")
	assert.Equal(t, "remote only", got)

	assert.Nil(t, store.baseline("", "b.txt"))
	assert.Equal(t, 1, report.Stats.FilesCopied)
}

func TestEngineUploadDeletionGate(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "data", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeUpload, PropagateDeletes: true})

	local.removeFile("a.txt")

	// With deletions disabled the remote copy survives.
	runEngine(t, local, remote, store, Options{Mode: ModeUpload})
	_, ok := remote.content("a.txt")
	assert.True(t, ok)

	// Enabled, the deletion propagates.
	runEngine(t, local, remote, store, Options{Mode: ModeUpload, PropagateDeletes: true})
	_, ok = remote.content("a.txt")
	assert.False(t, ok)
}

func TestEngineMkdirBeforeChildren(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("docs/notes.txt", "text", baseTime)

	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	calls := mutations(remote.callLog())
	mkdirIdx := slices.Index(calls, "mkdir docs")
	writeIdx := slices.Index(calls, "write docs/notes.txt")

	require.GreaterOrEqual(t, mkdirIdx, 0)
	require.GreaterOrEqual(t, writeIdx, 0)
	assert.Less(t, mkdirIdx, writeIdx, "directory must exist before its children transfer")

	got, _ := remote.content("docs/notes.txt")
	assert.Equal(t, "text", got)
}

func TestEngineRmdirAfterChildren(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("old/x.txt", "x", baseTime)
	local.seedFile("old/nested/y.txt", "y", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	local.removeTree("old")
	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	assert.False(t, remote.hasDir("old"))
	assert.Empty(t, report.Errors)

	calls := mutations(remote.callLog())
	rmdirOld := slices.Index(calls, "rmdir old")
	rmdirNested := slices.Index(calls, "rmdir old/nested")
	delX := slices.Index(calls, "delete old/x.txt")
	delY := slices.Index(calls, "delete old/nested/y.txt")

	require.GreaterOrEqual(t, rmdirOld, 0)
	require.GreaterOrEqual(t, rmdirNested, 0)
	assert.Less(t, delX, rmdirOld)
	assert.Less(t, delY, rmdirNested)
	assert.Less(t, rmdirNested, rmdirOld, "inner directory removed before its parent")
}

func TestEngineDryRunTouchesNothing(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "hello", baseTime)
	local.seedFile("docs/b.txt", "world", baseTime)

	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional, DryRun: true})

	assert.Empty(t, local.callLog())
	assert.Empty(t, remote.callLog())
	assert.Nil(t, store.baseline("", "a.txt"))

	// The planned work is still fully reported, including inside the
	// directory that does not exist remotely yet.
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Stats.FilesCopied)
	assert.Equal(t, 1, report.Stats.DirsCreated)
}

func TestEngineConflictLargerWins(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "same", baseTime)
	remote.seedFile("a.txt", "same", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	local.seedFile("a.txt", "local edit..", baseTime.Add(time.Minute))
	remote.seedFile("a.txt", "remote???", baseTime.Add(time.Hour))

	report := runEngine(t, local, remote, store, Options{
		Mode:     ModeBidirectional,
		Strategy: StrategyLargerWins,
	})

	// 12 bytes beats 9, despite the remote edit being newer.
	got, _ := remote.content("a.txt")
	assert.Equal(t, "local edit..", got)
	assert.Equal(t, 1, report.Stats.Conflicts)
	assert.Zero(t, report.Stats.ConflictsSkipped)
}

func TestEngineConflictSkipLeavesBothSides(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "same", baseTime)
	remote.seedFile("a.txt", "same", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	local.seedFile("a.txt", "local edit", baseTime.Add(time.Minute))
	remote.seedFile("a.txt", "remote edit!", baseTime.Add(time.Hour))

	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	localGot, _ := local.content("a.txt")
	remoteGot, _ := remote.content("a.txt")
	assert.Equal(t, "local edit", localGot)
	assert.Equal(t, "remote edit!", remoteGot)

	assert.Equal(t, 1, report.Stats.ConflictsSkipped)
	assert.True(t, report.HasFailures())

	// Next run sees the same conflict again: the baseline was not touched.
	report = runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})
	assert.Equal(t, 1, report.Stats.Conflicts)
}

func TestEngineInteractiveDecision(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "same", baseTime)
	remote.seedFile("a.txt", "same", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	local.seedFile("a.txt", "local edit", baseTime.Add(time.Minute))
	remote.seedFile("a.txt", "remote edit", baseTime.Add(time.Hour))

	var asked []string

	runEngine(t, local, remote, store, Options{
		Mode:     ModeBidirectional,
		Strategy: StrategyInteractive,
		Decide: func(ctx context.Context, c Conflict) (Winner, error) {
			asked = append(asked, c.Path)
			return WinnerRemote, nil
		},
	})

	assert.Equal(t, []string{"a.txt"}, asked)

	got, _ := local.content("a.txt")
	assert.Equal(t, "remote edit", got)
}

func TestEngineRemoteLock(t *testing.T) {
	t.Run("lock is created and removed", func(t *testing.T) {
		local := newFakeTarget("local")
		remote := newFakeTarget("remote")

		runEngine(t, local, remote, newMemStore(), Options{Mode: ModeBidirectional})

		calls := remote.callLog()
		assert.Contains(t, calls, "write "+LockFileName)
		assert.Contains(t, calls, "delete "+LockFileName)

		_, ok := remote.content(LockFileName)
		assert.False(t, ok)
	})

	t.Run("fresh foreign lock blocks the run", func(t *testing.T) {
		local := newFakeTarget("local")
		remote := newFakeTarget("remote")

		data, err := json.Marshal(lockRecord{
			RunID:     "other",
			PID:       4242,
			Hostname:  "elsewhere",
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		remote.seedFile(LockFileName, string(data), time.Now())

		engine, err := NewEngine(local, remote, newMemStore(), Options{Mode: ModeBidirectional}, nil)
		require.NoError(t, err)

		_, err = engine.Run(context.Background())
		assert.ErrorIs(t, err, ErrLocked)
	})

	t.Run("force replaces a foreign lock", func(t *testing.T) {
		local := newFakeTarget("local")
		remote := newFakeTarget("remote")

		data, err := json.Marshal(lockRecord{RunID: "other", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		remote.seedFile(LockFileName, string(data), time.Now())

		local.seedFile("a.txt", "data", baseTime)

		runEngine(t, local, remote, newMemStore(), Options{Mode: ModeBidirectional, Force: true})

		_, ok := remote.content("a.txt")
		assert.True(t, ok)
	})

	t.Run("dry run takes no lock", func(t *testing.T) {
		local := newFakeTarget("local")
		remote := newFakeTarget("remote")

		runEngine(t, local, remote, newMemStore(), Options{Mode: ModeBidirectional, DryRun: true})

		assert.Empty(t, remote.callLog())
	})
}

func TestEngineVanishedRemoteRootAborts(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("a.txt", "data", baseTime)
	runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	// The remote root disappears between runs. That is an unreachable
	// tree, not a remote mass deletion: the run must fail instead of
	// classifying every baselined entry as remotely deleted.
	remote.removeTree("")

	engine, err := NewEngine(local, remote, store, Options{Mode: ModeBidirectional}, nil)
	require.NoError(t, err)

	report, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, target.ErrNotFound)

	_, ok := local.content("a.txt")
	assert.True(t, ok, "local tree must be untouched")
	assert.Zero(t, report.Stats.FilesDeleted)

	// A dry run over the vanished root fails the same way rather than
	// reporting a bogus mass-deletion plan.
	engine, err = NewEngine(local, remote, store, Options{Mode: ModeBidirectional, DryRun: true}, nil)
	require.NoError(t, err)

	report, err = engine.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, report.Stats.FilesDeleted)
}

func TestEngineUnreadableDirectoryIsRecorded(t *testing.T) {
	local := newFakeTarget("local")
	remote := newFakeTarget("remote")
	store := newMemStore()

	local.seedFile("ok.txt", "fine", baseTime)
	local.seedDir("bad")
	local.failures["list bad"] = assert.AnError

	report := runEngine(t, local, remote, store, Options{Mode: ModeBidirectional})

	// The sibling still synced; the bad directory is an entry error, not
	// a run failure.
	_, ok := remote.content("ok.txt")
	assert.True(t, ok)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "bad", report.Errors[0].Path)
}
