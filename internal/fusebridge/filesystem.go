// Package fusebridge adapts bucse's bridge-agnostic Operations Layer
// (internal/fuseops, spec §4.8/C8) to the Linux kernel via go-fuse/v2. It is
// a thin translation shim: every method here converts go-fuse's calling
// convention into a fuseops call and the result back into a syscall.Errno
// (spec §4.8: "Operations layer is oblivious to which [bridge] is in use").
//
// Grounded on the teacher's internal/fuse/filesystem.go DirectoryNode/
// FileNode/FileHandle tree, generalized from an S3-object-passthrough
// filesystem to one backed by a repo.Repository.
package fusebridge

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bchodorowski/bucse/internal/fuseops"
	"github.com/bchodorowski/bucse/internal/repo"
	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

const (
	attrTTL  = time.Second
	entryTTL = time.Second
)

// FileSystem is the root of the go-fuse inode tree for a mounted
// repository.
type FileSystem struct {
	fs.Inode
	repo *repo.Repository
}

// NewFileSystem wraps an already-mounted Repository for serving over FUSE.
func NewFileSystem(r *repo.Repository) *FileSystem {
	return &FileSystem{repo: r}
}

// Root returns the root inode, per fs.InodeEmbedder.
func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &DirNode{repo: fsys.repo, path: "/"}
}

// DirNode represents one directory in the projection.
type DirNode struct {
	fs.Inode
	repo *repo.Repository
	path string
}

var (
	_ fs.NodeLookuper  = (*DirNode)(nil)
	_ fs.NodeReaddirer = (*DirNode)(nil)
	_ fs.NodeMkdirer   = (*DirNode)(nil)
	_ fs.NodeRmdirer   = (*DirNode)(nil)
	_ fs.NodeUnlinker  = (*DirNode)(nil)
	_ fs.NodeCreater   = (*DirNode)(nil)
	_ fs.NodeRenamer   = (*DirNode)(nil)
	_ fs.NodeGetattrer = (*DirNode)(nil)
)

func (n *DirNode) childPath(name string) string {
	return joinPath(n.path, name)
}

// Lookup implements fs.NodeLookuper (spec §4.8 getattr row, applied to a
// directory entry rather than an already-open path).
func (n *DirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	attr, err := fuseops.Getattr(ctx, n.repo, childPath)
	if err != nil {
		return nil, bucseerrors.ToErrno(err)
	}
	fillEntryOut(out, attr)
	if attr.IsDir {
		return n.NewInode(ctx, &DirNode{repo: n.repo, path: childPath}, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
	}
	return n.NewInode(ctx, &FileNode{repo: n.repo, path: childPath}, fs.StableAttr{Mode: fuse.S_IFREG}), 0
}

// Getattr implements fs.NodeGetattrer for the directory itself.
func (n *DirNode) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := fuseops.Getattr(ctx, n.repo, n.path)
	if err != nil {
		return bucseerrors.ToErrno(err)
	}
	fillAttrOut(out, attr)
	return 0
}

// Readdir implements fs.NodeReaddirer (spec §4.8 readdir row).
func (n *DirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := fuseops.Readdir(ctx, n.repo, n.path)
	if err != nil {
		return nil, bucseerrors.ToErrno(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

// Mkdir implements fs.NodeMkdirer (spec §4.8 mkdir row).
func (n *DirNode) Mkdir(ctx context.Context, name string, _ uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := fuseops.Mkdir(ctx, n.repo, childPath); err != nil {
		return nil, bucseerrors.ToErrno(err)
	}
	attr, err := fuseops.Getattr(ctx, n.repo, childPath)
	if err == nil {
		fillEntryOut(out, attr)
	}
	return n.NewInode(ctx, &DirNode{repo: n.repo, path: childPath}, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

// Rmdir implements fs.NodeRmdirer (spec §4.8 rmdir row).
func (n *DirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := fuseops.Rmdir(ctx, n.repo, n.childPath(name)); err != nil {
		return bucseerrors.ToErrno(err)
	}
	return 0
}

// Unlink implements fs.NodeUnlinker (spec §4.8 unlink row).
func (n *DirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := fuseops.Unlink(ctx, n.repo, n.childPath(name)); err != nil {
		return bucseerrors.ToErrno(err)
	}
	return 0
}

// Create implements fs.NodeCreater (spec §4.8 create row, followed
// immediately by open since POSIX creat() opens the file it creates).
func (n *DirNode) Create(ctx context.Context, name string, flags uint32, _ uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if err := fuseops.Create(ctx, n.repo, childPath); err != nil {
		return nil, nil, 0, bucseerrors.ToErrno(err)
	}
	if err := fuseops.Open(ctx, n.repo, childPath, true); err != nil {
		return nil, nil, 0, bucseerrors.ToErrno(err)
	}
	attr, err := fuseops.Getattr(ctx, n.repo, childPath)
	if err == nil {
		fillEntryOut(out, attr)
	}
	node := n.NewInode(ctx, &FileNode{repo: n.repo, path: childPath}, fs.StableAttr{Mode: fuse.S_IFREG})
	return node, &FileHandle{repo: n.repo, path: childPath}, 0, 0
}

// Rename implements fs.NodeRenamer (spec §4.7.5/§4.8 rename row).
func (n *DirNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	destDir, ok := newParent.(*DirNode)
	if !ok {
		return syscall.EINVAL
	}
	if err := fuseops.Rename(ctx, n.repo, n.childPath(name), destDir.childPath(newName), renameFlagsString(flags)); err != nil {
		return bucseerrors.ToErrno(err)
	}
	return 0
}

// FileNode represents one file in the projection.
type FileNode struct {
	fs.Inode
	repo *repo.Repository
	path string
}

var (
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeSetattrer = (*FileNode)(nil)
)

// Open implements fs.NodeOpener (spec §4.8 open row).
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	writable := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if err := fuseops.Open(ctx, f.repo, f.path, writable); err != nil {
		return nil, 0, bucseerrors.ToErrno(err)
	}
	if flags&syscall.O_TRUNC != 0 {
		if err := fuseops.Truncate(ctx, f.repo, f.path, 0); err != nil {
			return nil, 0, bucseerrors.ToErrno(err)
		}
	}
	return &FileHandle{repo: f.repo, path: f.path}, 0, 0
}

// Getattr implements fs.NodeGetattrer (spec §4.8 getattr row).
func (f *FileNode) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := fuseops.Getattr(ctx, f.repo, f.path)
	if err != nil {
		return bucseerrors.ToErrno(err)
	}
	fillAttrOut(out, attr)
	return 0
}

// Setattr implements fs.NodeSetattrer, used for truncate() and ftruncate()
// (spec §4.8 truncate row).
func (f *FileNode) Setattr(ctx context.Context, _ fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := fuseops.Truncate(ctx, f.repo, f.path, int64(size)); err != nil {
			return bucseerrors.ToErrno(err)
		}
	}
	attr, err := fuseops.Getattr(ctx, f.repo, f.path)
	if err != nil {
		return bucseerrors.ToErrno(err)
	}
	fillAttrOut(out, attr)
	return 0
}

// FileHandle is the open-file-handle side of a FileNode.
type FileHandle struct {
	repo    *repo.Repository
	path    string
	written bool
}

var (
	_ fs.FileReader   = (*FileHandle)(nil)
	_ fs.FileWriter   = (*FileHandle)(nil)
	_ fs.FileFlusher  = (*FileHandle)(nil)
	_ fs.FileReleaser = (*FileHandle)(nil)
)

// Read implements fs.FileReader (spec §4.8 read row).
func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := fuseops.Read(ctx, h.repo, h.path, off, int64(len(dest)))
	if err != nil {
		return nil, bucseerrors.ToErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

// Write implements fs.FileWriter (spec §4.8 write row).
func (h *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := fuseops.Write(ctx, h.repo, h.path, off, data)
	if err != nil {
		return 0, bucseerrors.ToErrno(err)
	}
	h.written = true
	return uint32(n), 0
}

// Flush implements fs.FileFlusher (spec §4.8 flush row).
func (h *FileHandle) Flush(ctx context.Context) syscall.Errno {
	if err := fuseops.Flush(ctx, h.repo, h.path); err != nil {
		return bucseerrors.ToErrno(err)
	}
	return 0
}

// Release implements fs.FileReleaser (spec §4.8 release row).
func (h *FileHandle) Release(ctx context.Context) syscall.Errno {
	if err := fuseops.Release(ctx, h.repo, h.path, h.written); err != nil {
		return bucseerrors.ToErrno(err)
	}
	return 0
}

func fillAttrOut(out *fuse.AttrOut, attr fuseops.Attr) {
	out.Mode = attr.Mode
	if attr.IsDir {
		out.Mode |= fuse.S_IFDIR
	} else {
		out.Mode |= fuse.S_IFREG
	}
	out.Size = uint64(attr.Size)
	out.Mtime = uint64(attr.Mtime.Unix())
	out.Atime = uint64(attr.Atime.Unix())
	out.Ctime = out.Mtime
	out.SetTimeout(attrTTL)
}

func fillEntryOut(out *fuse.EntryOut, attr fuseops.Attr) {
	out.Mode = attr.Mode
	if attr.IsDir {
		out.Mode |= fuse.S_IFDIR
	} else {
		out.Mode |= fuse.S_IFREG
	}
	out.Size = uint64(attr.Size)
	out.Mtime = uint64(attr.Mtime.Unix())
	out.Atime = uint64(attr.Atime.Unix())
	out.Ctime = out.Mtime
	out.SetEntryTimeout(entryTTL)
	out.SetAttrTimeout(attrTTL)
}

// renameFlagsString turns go-fuse's raw rename flags into the string
// vocabulary fuseops.Rename understands ("EXCHANGE", "NOREPLACE"), keeping
// the RENAME_* syscall constants out of the bridge-agnostic layer.
func renameFlagsString(flags uint32) string {
	const (
		renameNoReplace = 1 << 0
		renameExchange  = 1 << 1
	)
	s := ""
	if flags&renameExchange != 0 {
		s += "EXCHANGE"
	}
	if flags&renameNoReplace != 0 {
		s += "NOREPLACE"
	}
	return s
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return path.Join(dir, name)
}
