package filesystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRootIsSingular(t *testing.T) {
	now := time.Now()
	p := New(now)
	assert.Equal(t, "", p.Root.Name)
	assert.Nil(t, p.Root.Parent)
	assert.Equal(t, "/", FullPathOfDir(p.Root))
}

func TestAddFileAndResolve(t *testing.T) {
	p := New(time.Now())
	AddFile(p.Root, "a.txt", time.Now(), []string{"abc"}, 5, 512)

	f, ok := p.ResolveFile("/a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, "/a.txt", FullPathOfFile(f))
}

func TestResolveContainingDirNested(t *testing.T) {
	p := New(time.Now())
	d := AddDir(p.Root, "d", time.Now())
	AddDir(d, "e", time.Now())

	dir, name, ok := p.ResolveContainingDir("/d/e/z.txt")
	require.True(t, ok)
	assert.Equal(t, "e", dir.Name)
	assert.Equal(t, "z.txt", name)
}

func TestResolveContainingDirMissingParent(t *testing.T) {
	p := New(time.Now())
	_, _, ok := p.ResolveContainingDir("/missing/z.txt")
	assert.False(t, ok)
}

func TestNameTakenAcrossFilesAndDirs(t *testing.T) {
	p := New(time.Now())
	AddDir(p.Root, "x", time.Now())
	assert.True(t, NameTaken(p.Root, "x"))
	assert.False(t, NameTaken(p.Root, "y"))

	AddFile(p.Root, "y", time.Now(), nil, 0, 0)
	assert.True(t, NameTaken(p.Root, "y"))
}

func TestRemoveFileAndDir(t *testing.T) {
	p := New(time.Now())
	AddFile(p.Root, "a", time.Now(), nil, 0, 0)
	RemoveFile(p.Root, "a")
	_, ok := p.ResolveFile("/a")
	assert.False(t, ok)

	d := AddDir(p.Root, "d", time.Now())
	assert.True(t, IsEmpty(d))
	RemoveDir(p.Root, "d")
	_, ok = p.ResolveDir("/d")
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	p := New(time.Now())
	d := AddDir(p.Root, "d", time.Now())
	assert.True(t, IsEmpty(d))
	AddFile(d, "f", time.Now(), nil, 0, 0)
	assert.False(t, IsEmpty(d))
}
