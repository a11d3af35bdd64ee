package fusebridge

import (
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bchodorowski/bucse/internal/repo"
)

// MountOptions controls the go-fuse server's kernel-facing options (spec
// §6.5's mount flags: read-only, allow-other).
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
	FSName     string
}

// MountManager owns one go-fuse server instance bridging a Repository to
// the kernel. Grounded on the teacher's MountManager (Mount/Unmount/Wait
// around a *fuse.Server), generalized from an S3-backed FileSystem to one
// backed by internal/fuseops via FileSystem.
type MountManager struct {
	server  *fuse.Server
	opts    MountOptions
	mounted bool
}

// NewMountManager constructs a manager for opts; Mount does the actual
// kernel mount.
func NewMountManager(opts MountOptions) *MountManager {
	if opts.FSName == "" {
		opts.FSName = "bucse"
	}
	return &MountManager{opts: opts}
}

// Mount mounts r at m.opts.MountPoint (spec §4.9: mounting starts the
// concurrency harness's external face).
func (m *MountManager) Mount(r *repo.Repository) error {
	if m.mounted {
		return fmt.Errorf("fusebridge: already mounted at %s", m.opts.MountPoint)
	}
	if err := validateMountPoint(m.opts.MountPoint); err != nil {
		return err
	}

	fsys := NewFileSystem(r)
	attrTimeout := attrTTL
	entryTimeout := entryTTL
	fuseOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     m.opts.FSName,
			Name:       m.opts.FSName,
			AllowOther: m.opts.AllowOther,
			Debug:      m.opts.Debug,
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}
	if m.opts.ReadOnly {
		fuseOpts.MountOptions.Options = append(fuseOpts.MountOptions.Options, "ro")
	}

	server, err := fs.Mount(m.opts.MountPoint, fsys.Root(), fuseOpts)
	if err != nil {
		return fmt.Errorf("fusebridge: mount %s: %w", m.opts.MountPoint, err)
	}
	m.server = server
	m.mounted = true
	return nil
}

// Wait blocks until the kernel unmounts the filesystem (e.g. via
// fusermount -u) or Unmount is called.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

// Unmount requests the kernel tear down the mount.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return nil
	}
	if err := m.server.Unmount(); err != nil {
		return fmt.Errorf("fusebridge: unmount %s: %w", m.opts.MountPoint, err)
	}
	m.mounted = false
	return nil
}

func validateMountPoint(path string) error {
	if path == "" {
		return fmt.Errorf("fusebridge: mount point cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("fusebridge: mount point %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fusebridge: mount point %s is not a directory", path)
	}
	return nil
}
