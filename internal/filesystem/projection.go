// Package filesystem implements bucse's in-memory Filesystem Projection
// (spec §3.2/§4.5, C5): the tree of directories and files derived from
// replaying the action log in time order, with per-file dirty state and
// pending writes layered on top for not-yet-flushed local mutations.
//
// Grounded on the teacher's node/handle abstractions (internal/filesystem
// in scttfrdmn/objectfs) but reshaped entirely: the teacher's projection is
// a passthrough cache over S3 keys, bucse's is the authoritative source of
// truth for getattr/readdir/resolution, built by applying Actions.
package filesystem

import (
	"strings"
	"time"
)

// DirtyFlag is a bit in a File's dirtyFlags bitset (spec §3.2).
type DirtyFlag uint8

const (
	PendingCreate DirtyFlag = 1 << iota
	PendingWrite
	PendingTrunc
)

// PendingWriteOp is one queued, not-yet-flushed write (spec §3.2).
type PendingWriteOp struct {
	Offset int64
	Data   []byte
}

// Dir is a directory node. Children own their own storage; Parent is a
// non-owning back-reference used only for path reconstruction (spec §9:
// "model children as owning ... and parent as a weak back-reference").
type Dir struct {
	Name   string
	Atime  time.Time
	Mtime  time.Time
	Dirs   map[string]*Dir
	Files  map[string]*File
	Parent *Dir
}

// File is a file node (spec §3.2).
type File struct {
	Name      string
	Atime     time.Time
	Mtime     time.Time
	Content   []string // one storage name per block, in order
	Size      int64
	BlockSize int64

	DirtyFlags DirtyFlag
	Pending    []PendingWriteOp
	TruncSize  int64 // meaningful only when PendingTrunc is set

	Parent *Dir
}

func newDir(name string, parent *Dir, t time.Time) *Dir {
	return &Dir{
		Name: name, Atime: t, Mtime: t,
		Dirs: make(map[string]*Dir), Files: make(map[string]*File),
		Parent: parent,
	}
}

// Projection is the mounted repository's in-memory tree. The zero value is
// not usable; use New.
type Projection struct {
	Root *Dir
}

// New creates a Projection with a singular root directory whose name is
// empty and whose atime/mtime are the repository's recorded init time
// (spec §4.9: "used as root dir's atime/mtime").
func New(rootTime time.Time) *Projection {
	return &Projection{Root: newDir("", nil, rootTime)}
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// FindChildFile looks name up in dir's file map; nil if absent.
func FindChildFile(dir *Dir, name string) *File {
	return dir.Files[name]
}

// FindChildDir looks name up in dir's subdirectory map; nil if absent.
func FindChildDir(dir *Dir, name string) *Dir {
	return dir.Dirs[name]
}

// NameTaken reports whether name is used by any child file or directory of
// dir (spec §3.2 unique-name invariant).
func NameTaken(dir *Dir, name string) bool {
	if _, ok := dir.Files[name]; ok {
		return true
	}
	if _, ok := dir.Dirs[name]; ok {
		return true
	}
	return false
}

// ResolveContainingDir walks all but the last path segment, per spec §4.5.
// Returns the directory and the final segment (the to-be-resolved name).
func (p *Projection) ResolveContainingDir(path string) (*Dir, string, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, "", false
	}
	dir := p.Root
	for _, s := range segs[:len(segs)-1] {
		next, ok := dir.Dirs[s]
		if !ok {
			return nil, "", false
		}
		dir = next
	}
	return dir, segs[len(segs)-1], true
}

// ResolveDir walks every segment of path, returning the directory node.
func (p *Projection) ResolveDir(path string) (*Dir, bool) {
	segs := splitPath(path)
	dir := p.Root
	for _, s := range segs {
		next, ok := dir.Dirs[s]
		if !ok {
			return nil, false
		}
		dir = next
	}
	return dir, true
}

// ResolveFile resolves path to a file node.
func (p *Projection) ResolveFile(path string) (*File, bool) {
	dir, name, ok := p.ResolveContainingDir(path)
	if !ok {
		return nil, false
	}
	f, ok := dir.Files[name]
	return f, ok
}

// FullPathOfDir reconstructs an absolute path by climbing parent pointers.
func FullPathOfDir(d *Dir) string {
	if d.Parent == nil {
		return "/"
	}
	var segs []string
	for cur := d; cur.Parent != nil; cur = cur.Parent {
		segs = append([]string{cur.Name}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

// FullPathOfFile reconstructs an absolute path by climbing parent pointers.
func FullPathOfFile(f *File) string {
	base := FullPathOfDir(f.Parent)
	if base == "/" {
		return "/" + f.Name
	}
	return base + "/" + f.Name
}

// AddDir creates and links a new, empty subdirectory named name under
// parent, stamped with t. Caller must already have checked NameTaken.
func AddDir(parent *Dir, name string, t time.Time) *Dir {
	d := newDir(name, parent, t)
	parent.Dirs[name] = d
	return d
}

// RemoveDir unlinks name from parent's Dirs (spec §4.6 RemoveDirectory).
func RemoveDir(parent *Dir, name string) {
	delete(parent.Dirs, name)
}

// AddFile creates and links a new file node under parent.
func AddFile(parent *Dir, name string, t time.Time, content []string, size, blockSize int64) *File {
	f := &File{
		Name: name, Atime: t, Mtime: t,
		Content: content, Size: size, BlockSize: blockSize,
		Parent: parent,
	}
	parent.Files[name] = f
	return f
}

// RemoveFile unlinks name from parent's Files (spec §4.6 RemoveFile).
func RemoveFile(parent *Dir, name string) {
	delete(parent.Files, name)
}

// IsEmpty reports whether dir has no children (spec §4.7.4: rmdir precondition).
func IsEmpty(dir *Dir) bool {
	return len(dir.Dirs) == 0 && len(dir.Files) == 0
}
