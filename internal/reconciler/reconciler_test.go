package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/internal/action"
	"github.com/bchodorowski/bucse/internal/filesystem"
	"github.com/bchodorowski/bucse/internal/store/local"
)

func identity(b []byte) ([]byte, error) { return b, nil }

func newTestLog(t *testing.T) (*Log, *local.Destination) {
	t.Helper()
	ctx := context.Background()
	dest := local.New()
	require.NoError(t, dest.Init(ctx, t.TempDir()))
	require.NoError(t, dest.CreateDirs(ctx))
	proj := filesystem.New(time.Now())
	return New(proj, dest, identity), dest
}

var seq int

func depositAction(t *testing.T, dest *local.Destination, a *action.Action) string {
	t.Helper()
	data, err := action.EncodeBatch(action.Batch{a})
	require.NoError(t, err)
	seq++
	name := fmt.Sprintf("%040d", seq)
	require.NoError(t, dest.AddActionFile(context.Background(), name, data))
	return name
}

func TestIngestAddFile(t *testing.T) {
	l, dest := newTestLog(t)
	name := depositAction(t, dest, &action.Action{Time: 100, Kind: action.AddFile, Path: "a.txt", Content: []string{}, Size: 0, BlockSize: 0})

	require.NoError(t, l.Ingest(context.Background(), []string{name}, false))
	assert.Len(t, l.Actions, 1)
	assert.Empty(t, l.ActionsPending)

	_, ok := l.Projection.ResolveFile("/a.txt")
	assert.True(t, ok)
}

func TestIngestDefersWhileMore(t *testing.T) {
	l, dest := newTestLog(t)
	name := depositAction(t, dest, &action.Action{Time: 100, Kind: action.AddFile, Path: "a.txt", Content: []string{}})

	require.NoError(t, l.Ingest(context.Background(), []string{name}, true))
	assert.Empty(t, l.Actions)
	assert.Len(t, l.ActionsPending, 1)
}

func TestIngestOutOfOrderReordersAndReapplies(t *testing.T) {
	l, dest := newTestLog(t)

	later := depositAction(t, dest, &action.Action{Time: 200, Kind: action.AddFile, Path: "b.txt", Content: []string{}})
	require.NoError(t, l.Ingest(context.Background(), []string{later}, false))
	assert.Len(t, l.Actions, 1)

	earlier := depositAction(t, dest, &action.Action{Time: 150, Kind: action.AddDirectory, Path: "d", Content: []string{}})
	require.NoError(t, l.Ingest(context.Background(), []string{earlier}, false))

	require.True(t, action.Sorted(l.Actions))
	assert.Len(t, l.Actions, 2)
	assert.Equal(t, int64(150), l.Actions[0].Time)
	assert.Equal(t, int64(200), l.Actions[1].Time)

	_, ok := l.Projection.ResolveFile("/b.txt")
	assert.True(t, ok)
	_, ok = l.Projection.ResolveDir("/d")
	assert.True(t, ok)
}

func TestApplyRemoveFileAfterAdd(t *testing.T) {
	l, _ := newTestLog(t)
	require.NoError(t, l.Apply(&action.Action{Time: 1, Kind: action.AddFile, Path: "a", Content: []string{}}))
	require.NoError(t, l.Apply(&action.Action{Time: 2, Kind: action.EditFile, Path: "a", Content: []string{}}))
	require.NoError(t, l.Apply(&action.Action{Time: 3, Kind: action.RemoveFile, Path: "a"}))

	_, ok := l.Projection.ResolveFile("/a")
	assert.False(t, ok)
}

func TestApplyRemoveDirectoryRequiresEmpty(t *testing.T) {
	l, _ := newTestLog(t)
	require.NoError(t, l.Apply(&action.Action{Time: 1, Kind: action.AddDirectory, Path: "d", Content: []string{}}))
	require.NoError(t, l.Apply(&action.Action{Time: 2, Kind: action.AddFile, Path: "d/f", Content: []string{}}))

	err := l.Apply(&action.Action{Time: 3, Kind: action.RemoveDirectory, Path: "d"})
	assert.Error(t, err)

	require.NoError(t, l.Apply(&action.Action{Time: 4, Kind: action.RemoveFile, Path: "d/f"}))
	require.NoError(t, l.Apply(&action.Action{Time: 5, Kind: action.RemoveDirectory, Path: "d"}))
}

func TestApplyDropsInvalidPrecondition(t *testing.T) {
	l, _ := newTestLog(t)
	err := l.Apply(&action.Action{Time: 1, Kind: action.EditFile, Path: "missing", Content: []string{}})
	assert.Error(t, err)
}

// TestRenameOverwriteSurvivesFreshReplay rebuilds a Projection from scratch
// from the Action sequence a rename-onto-an-existing-file would emit: the
// destination's overwrite must be an EditFile (the file already exists at
// apply time), not an AddFile, or a fresh replay drops it as a duplicate add
// and the overwrite silently reverts.
func TestRenameOverwriteSurvivesFreshReplay(t *testing.T) {
	l, _ := newTestLog(t)

	require.NoError(t, l.Apply(&action.Action{Time: 1, Kind: action.AddFile, Path: "dst", Content: []string{}, Size: 0}))
	require.NoError(t, l.Apply(&action.Action{Time: 2, Kind: action.AddFile, Path: "src", Content: []string{"blk"}, Size: 3}))
	require.NoError(t, l.Apply(&action.Action{Time: 3, Kind: action.EditFile, Path: "dst", Content: []string{"blk"}, Size: 3}))
	require.NoError(t, l.Apply(&action.Action{Time: 3, Kind: action.RemoveFile, Path: "src"}))

	f, ok := l.Projection.ResolveFile("/dst")
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Size)
	_, ok = l.Projection.ResolveFile("/src")
	assert.False(t, ok)
}
