//go:build cgofuse

// Package cgofusebridge adapts bucse's bridge-agnostic Operations Layer
// (internal/fuseops, spec §4.8/C8) to the darwin/windows kernel via
// winfsp/cgofuse, the secondary bridge spec §4.8 calls out as
// "oblivious" to which kernel adapter drives it. Grounded on the teacher's
// internal/fuse/cgofuse_filesystem.go (fuse.FileSystemBase method set,
// FileSystemHost mount/unmount lifecycle), generalized from an S3-object
// passthrough to the same fuseops calls internal/fusebridge makes for
// go-fuse/v2, so the two bridges stay behaviorally identical.
package cgofusebridge

import (
	"context"
	"sync"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/bchodorowski/bucse/internal/fuseops"
	"github.com/bchodorowski/bucse/internal/repo"
	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// FileSystem implements fuse.FileSystemInterface (via FileSystemBase) over a
// mounted Repository. Unlike go-fuse's inode tree (internal/fusebridge),
// cgofuse's calling convention is flat: every method takes the full POSIX
// path, matching fuseops's own path-based signatures directly.
type FileSystem struct {
	fuse.FileSystemBase

	repo *repo.Repository

	mu         sync.Mutex
	nextHandle uint64
	handles    map[uint64]*handleState

	ready chan struct{}
}

type handleState struct {
	path    string
	written bool
}

// NewFileSystem wraps an already-mounted Repository for serving over cgofuse.
func NewFileSystem(r *repo.Repository) *FileSystem {
	return &FileSystem{repo: r, handles: make(map[uint64]*handleState), nextHandle: 1, ready: make(chan struct{})}
}

// Init implements fuse.FileSystemInterface's post-mount hook, signaling
// MountManager.Mount that the kernel has finished establishing the mount
// (cgofuse's FileSystemHost.Mount, unlike go-fuse's fs.Mount, blocks the
// calling goroutine for the life of the mount rather than returning once
// mounted, so readiness has to come back out-of-band through this hook).
func (f *FileSystem) Init() {
	close(f.ready)
}

func toErrno(err error) int {
	if err == nil {
		return 0
	}
	return -int(bucseerrors.ToErrno(err))
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func (f *FileSystem) openHandle(path string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.nextHandle
	f.nextHandle++
	f.handles[h] = &handleState{path: path}
	return h
}

func (f *FileSystem) markWritten(fh uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.handles[fh]; ok {
		s.written = true
	}
}

func (f *FileSystem) closeHandle(fh uint64) (path string, written bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.handles[fh]
	if !ok {
		return "", false
	}
	delete(f.handles, fh)
	return s.path, s.written
}

func fillStat(stat *fuse.Stat_t, attr fuseops.Attr) {
	stat.Mode = attr.Mode
	if attr.IsDir {
		stat.Mode |= fuse.S_IFDIR
		stat.Nlink = 2
	} else {
		stat.Mode |= fuse.S_IFREG
		stat.Nlink = 1
		stat.Size = attr.Size
	}
	stat.Mtim.Sec = attr.Mtime.Unix()
	stat.Atim.Sec = attr.Atime.Unix()
	stat.Ctim.Sec = attr.Mtime.Unix()
}

// Getattr implements spec §4.8's getattr row.
func (f *FileSystem) Getattr(path string, stat *fuse.Stat_t, _ uint64) int {
	attr, err := fuseops.Getattr(context.Background(), f.repo, normalize(path))
	if err != nil {
		return toErrno(err)
	}
	fillStat(stat, attr)
	return 0
}

// Readdir implements spec §4.8's readdir row.
func (f *FileSystem) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, _ int64, _ uint64) int {
	entries, err := fuseops.Readdir(context.Background(), f.repo, normalize(path))
	if err != nil {
		return toErrno(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, e := range entries {
		stat := &fuse.Stat_t{}
		if e.IsDir {
			stat.Mode = fuse.S_IFDIR | 0o755
			stat.Nlink = 2
		} else {
			stat.Mode = fuse.S_IFREG | 0o644
			stat.Nlink = 1
		}
		if !fill(e.Name, stat, 0) {
			break
		}
	}
	return 0
}

// Mkdir implements spec §4.8's mkdir row.
func (f *FileSystem) Mkdir(path string, _ uint32) int {
	return toErrno(fuseops.Mkdir(context.Background(), f.repo, normalize(path)))
}

// Rmdir implements spec §4.8's rmdir row.
func (f *FileSystem) Rmdir(path string) int {
	return toErrno(fuseops.Rmdir(context.Background(), f.repo, normalize(path)))
}

// Unlink implements spec §4.8's unlink row.
func (f *FileSystem) Unlink(path string) int {
	return toErrno(fuseops.Unlink(context.Background(), f.repo, normalize(path)))
}

// Create implements spec §4.8's create row (creat() followed by open()).
func (f *FileSystem) Create(path string, _ int, _ uint32) (int, uint64) {
	ctx := context.Background()
	p := normalize(path)
	if err := fuseops.Create(ctx, f.repo, p); err != nil {
		return toErrno(err), 0
	}
	if err := fuseops.Open(ctx, f.repo, p, true); err != nil {
		return toErrno(err), 0
	}
	return 0, f.openHandle(p)
}

// Open implements spec §4.8's open row.
func (f *FileSystem) Open(path string, flags int) (int, uint64) {
	p := normalize(path)
	writable := flags&(0x1|0x2) != 0 // O_WRONLY|O_RDWR, matching syscall values on every cgofuse target
	if err := fuseops.Open(context.Background(), f.repo, p, writable); err != nil {
		return toErrno(err), 0
	}
	const oTrunc = 0o1000
	if flags&oTrunc != 0 {
		if err := fuseops.Truncate(context.Background(), f.repo, p, 0); err != nil {
			return toErrno(err), 0
		}
	}
	return 0, f.openHandle(p)
}

// Read implements spec §4.8's read row.
func (f *FileSystem) Read(path string, buff []byte, ofst int64, _ uint64) int {
	data, err := fuseops.Read(context.Background(), f.repo, normalize(path), ofst, int64(len(buff)))
	if err != nil {
		return toErrno(err)
	}
	copy(buff, data)
	return len(data)
}

// Write implements spec §4.8's write row.
func (f *FileSystem) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := fuseops.Write(context.Background(), f.repo, normalize(path), ofst, buff)
	if err != nil {
		return toErrno(err)
	}
	f.markWritten(fh)
	return n
}

// Truncate implements spec §4.8's truncate row.
func (f *FileSystem) Truncate(path string, size int64, _ uint64) int {
	return toErrno(fuseops.Truncate(context.Background(), f.repo, normalize(path), size))
}

// Flush implements spec §4.8's flush row.
func (f *FileSystem) Flush(path string, _ uint64) int {
	return toErrno(fuseops.Flush(context.Background(), f.repo, normalize(path)))
}

// Release implements spec §4.8's release row.
func (f *FileSystem) Release(path string, fh uint64) int {
	p, written := f.closeHandle(fh)
	if p == "" {
		p = normalize(path)
	}
	return toErrno(fuseops.Release(context.Background(), f.repo, p, written))
}

// Rename implements spec §4.7.5/§4.8's rename row. cgofuse exposes no
// RENAME_* flags (unlike go-fuse's Rename), so only the flagless case is
// reachable through this bridge.
func (f *FileSystem) Rename(oldpath string, newpath string) int {
	return toErrno(fuseops.Rename(context.Background(), f.repo, normalize(oldpath), normalize(newpath), ""))
}

var _ fuse.FileSystemInterface = (*FileSystem)(nil)
