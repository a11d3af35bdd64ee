package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/internal/block"
	"github.com/bchodorowski/bucse/internal/config"
	"github.com/bchodorowski/bucse/internal/filesystem"
	"github.com/bchodorowski/bucse/internal/repo"
)

func TestRunVersionFlag(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, run([]string{"-V"}, &buf))
}

func TestRunRequiresRepositoryFlag(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 2, run([]string{}, &buf))
}

func TestRunArchivesRepositoryTree(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, repo.Init(ctx, dir, "r", "", "none", ""))

	cfg := config.NewDefault()
	cfg.Repository = dir
	r, err := repo.Mount(ctx, cfg)
	require.NoError(t, err)

	r.Lock()
	root, _ := r.Projection.ResolveDir("/")
	f := filesystem.AddFile(root, "hello.txt", root.Mtime, nil, 0, 0)
	f.DirtyFlags = filesystem.PendingCreate | filesystem.PendingWrite
	f.Pending = []filesystem.PendingWriteOp{{Offset: 0, Data: []byte("hi")}}
	a, err := r.Block.Flush(ctx, f, "/hello.txt", root.Mtime.UnixMicro())
	require.NoError(t, err)
	block.ApplyFlush(f, a)
	r.Log.Actions = append(r.Log.Actions, a)
	r.Unlock()
	require.NoError(t, r.Unmount(ctx))

	var buf bytes.Buffer
	code := run([]string{"-r", dir}, &buf)
	require.Equal(t, 0, code)

	data, err := io.ReadAll(&buf)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello.txt")
}
