package block

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/internal/action"
	"github.com/bchodorowski/bucse/internal/cache"
	"github.com/bchodorowski/bucse/internal/crypto"
	"github.com/bchodorowski/bucse/internal/filesystem"
	"github.com/bchodorowski/bucse/internal/store/local"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	dest := local.New()
	require.NoError(t, dest.Init(ctx, t.TempDir()))
	require.NoError(t, dest.CreateDirs(ctx))
	return New(dest, crypto.NoneCipher{}, "", cache.New())
}

func TestPickBlockSizeZero(t *testing.T) {
	assert.EqualValues(t, 0, PickBlockSize(0))
}

func TestPickBlockSizeClampsToMin(t *testing.T) {
	assert.Equal(t, MinBlockSize, PickBlockSize(100))
}

func TestPickBlockSizeTargets4to8Blocks(t *testing.T) {
	b := PickBlockSize(4096)
	assert.True(t, b > 0 && (b&(b-1)) == 0, "must be a power of two")
	blocks := ceilDiv(4096, b)
	assert.GreaterOrEqual(t, blocks, int64(4))
	assert.LessOrEqual(t, blocks, int64(8))
}

func TestFlushAddFileSmall(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	f := &filesystem.File{DirtyFlags: filesystem.PendingCreate | filesystem.PendingWrite}
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("hello")}}

	a, err := e.Flush(ctx, f, "/a.txt", 1000)
	require.NoError(t, err)
	assert.Equal(t, action.AddFile, a.Kind)
	assert.EqualValues(t, 5, a.Size)
	assert.Len(t, a.Content, 1)

	ApplyFlush(f, a)
	assert.EqualValues(t, 0, f.DirtyFlags)

	out, err := e.Read(ctx, f, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestFlushPartialOverwrite(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	f := &filesystem.File{DirtyFlags: filesystem.PendingCreate | filesystem.PendingWrite}
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("hello")}}
	a, err := e.Flush(ctx, f, "/a.txt", 1000)
	require.NoError(t, err)
	ApplyFlush(f, a)

	f.DirtyFlags |= filesystem.PendingWrite
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("HE")}}
	a2, err := e.Flush(ctx, f, "/a.txt", 1001)
	require.NoError(t, err)
	assert.Equal(t, action.EditFile, a2.Kind)
	assert.EqualValues(t, 5, a2.Size)
	assert.Len(t, a2.Content, 1)
	ApplyFlush(f, a2)

	out, err := e.Read(ctx, f, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "HEllo", string(out))
}

func TestFlushGrowAcrossBlockBoundary(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	data := make([]byte, 513)
	f := &filesystem.File{DirtyFlags: filesystem.PendingCreate | filesystem.PendingWrite, BlockSize: 512}
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: data}}
	a, err := e.Flush(ctx, f, "/big.txt", 1000)
	require.NoError(t, err)
	ApplyFlush(f, a)

	assert.Len(t, f.Content, 2)
	out, err := e.Read(ctx, f, 0, 513)
	require.NoError(t, err)
	assert.Len(t, out, 513)
	for _, b := range out {
		assert.EqualValues(t, 0, b)
	}

	// Read past EOF returns 0 bytes.
	out2, err := e.Read(ctx, f, 513, 10)
	require.NoError(t, err)
	assert.Len(t, out2, 0)
}

func TestFlushEmptyFileNoWrites(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	f := &filesystem.File{DirtyFlags: filesystem.PendingCreate}
	a, err := e.Flush(ctx, f, "/empty.txt", 1000)
	require.NoError(t, err)
	assert.Equal(t, action.AddFile, a.Kind)
	assert.EqualValues(t, 0, a.Size)
	assert.Len(t, a.Content, 0)
}

func TestFlushShrinkTruncate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	f := &filesystem.File{DirtyFlags: filesystem.PendingCreate | filesystem.PendingWrite}
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("hello world")}}
	a, err := e.Flush(ctx, f, "/t.txt", 1000)
	require.NoError(t, err)
	ApplyFlush(f, a)

	f.DirtyFlags |= filesystem.PendingTrunc
	f.TruncSize = 5
	a2, err := e.Flush(ctx, f, "/t.txt", 1001)
	require.NoError(t, err)
	assert.EqualValues(t, 5, a2.Size)
	ApplyFlush(f, a2)

	out, err := e.Read(ctx, f, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}
