package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/internal/block"
	"github.com/bchodorowski/bucse/internal/config"
	"github.com/bchodorowski/bucse/internal/filesystem"
)

func TestInitAndMountRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, Init(ctx, dir, "test-repo", "a test repository", "none", ""))

	cfg := config.NewDefault()
	cfg.Repository = dir
	cfg.PollIntervalSeconds = 1

	r, err := Mount(ctx, cfg)
	require.NoError(t, err)
	defer r.Unmount(ctx)

	assert.Equal(t, "test-repo", r.Name)
	assert.Equal(t, "a test repository", r.Comment)
	assert.Equal(t, "none", r.Cipher.Name())
	assert.Empty(t, r.Log.Actions)

	_, ok := r.Projection.ResolveDir("/")
	assert.True(t, ok)
}

func TestInitRejectsMissingPassphraseForAES(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	err := Init(ctx, dir, "test-repo", "", "aes", "")
	assert.Error(t, err)
}

func TestMountWriteFlushReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir, "test-repo", "", "none", ""))

	cfg := config.NewDefault()
	cfg.Repository = dir
	r, err := Mount(ctx, cfg)
	require.NoError(t, err)
	defer r.Unmount(ctx)

	r.Lock()
	root, _ := r.Projection.ResolveDir("/")
	f := filesystem.AddFile(root, "hello.txt", time.Now(), nil, 0, 0)
	f.DirtyFlags = filesystem.PendingCreate | filesystem.PendingWrite
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("hello world")}}

	a, err := r.Block.Flush(ctx, f, "/hello.txt", time.Now().UnixMicro())
	require.NoError(t, err)
	block.ApplyFlush(f, a)
	r.Log.Actions = append(r.Log.Actions, a)
	r.Unlock()

	r.Lock()
	f2, ok := r.Projection.ResolveFile("/hello.txt")
	require.True(t, ok)
	data, err := r.Block.Read(ctx, f2, 0, int64(f2.Size))
	r.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestUnmountFlushesPendingWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir, "test-repo", "", "none", ""))

	cfg := config.NewDefault()
	cfg.Repository = dir
	r, err := Mount(ctx, cfg)
	require.NoError(t, err)

	r.Lock()
	root, _ := r.Projection.ResolveDir("/")
	f := filesystem.AddFile(root, "dirty.txt", time.Now(), nil, 0, 0)
	f.DirtyFlags = filesystem.PendingCreate | filesystem.PendingWrite
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("not flushed yet")}}
	r.Unlock()

	require.NoError(t, r.Unmount(ctx))
	require.Len(t, r.Log.Actions, 1)
	assert.Equal(t, "/dirty.txt", r.Log.Actions[0].Path)

	// Remounting from scratch must see the action the unmount flushed.
	cfg2 := config.NewDefault()
	cfg2.Repository = dir
	r2, err := Mount(ctx, cfg2)
	require.NoError(t, err)
	defer r2.Unmount(ctx)

	r2.Lock()
	f2, ok := r2.Projection.ResolveFile("/dirty.txt")
	r2.Unlock()
	require.True(t, ok)
	assert.Equal(t, int64(len("not flushed yet")), f2.Size)
}
