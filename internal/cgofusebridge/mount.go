//go:build cgofuse

package cgofusebridge

import (
	"fmt"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/bchodorowski/bucse/internal/repo"
)

// MountOptions controls the cgofuse host's kernel-facing options, mirroring
// internal/fusebridge.MountOptions (spec §6.5's mount flags).
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	FSName     string
}

// MountManager owns one cgofuse FileSystemHost bridging a Repository to the
// kernel, grounded on the teacher's CgoFuseFS.Mount/Unmount lifecycle.
type MountManager struct {
	host    *fuse.FileSystemHost
	fsys    *FileSystem
	opts    MountOptions
	mounted bool
	done    chan struct{}
}

// NewMountManager constructs a manager for opts; Mount does the actual
// kernel mount.
func NewMountManager(opts MountOptions) *MountManager {
	if opts.FSName == "" {
		opts.FSName = "bucse"
	}
	return &MountManager{opts: opts}
}

// Mount mounts r at m.opts.MountPoint. host.Mount blocks for the life of the
// mount, so it runs on its own goroutine; Mount itself returns once the
// kernel has finished establishing the mount (FileSystem.Init fires) or
// after a short timeout if that signal never arrives.
func (m *MountManager) Mount(r *repo.Repository) error {
	if m.mounted {
		return fmt.Errorf("cgofusebridge: already mounted at %s", m.opts.MountPoint)
	}
	fsys := NewFileSystem(r)
	host := fuse.NewFileSystemHost(fsys)
	host.SetCapReaddirPlus(true)

	args := []string{"-o", "fsname=" + m.opts.FSName}
	if m.opts.ReadOnly {
		args = append(args, "-o", "ro")
	}
	if m.opts.AllowOther {
		args = append(args, "-o", "allow_other")
	}

	done := make(chan struct{})
	go func() {
		host.Mount(m.opts.MountPoint, args)
		close(done)
	}()

	select {
	case <-fsys.ready:
	case <-done:
		return fmt.Errorf("cgofusebridge: mount %s failed", m.opts.MountPoint)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("cgofusebridge: mount %s timed out waiting for kernel", m.opts.MountPoint)
	}

	m.host = host
	m.fsys = fsys
	m.done = done
	m.mounted = true
	return nil
}

// Wait blocks until the kernel unmounts the filesystem or Unmount is called.
func (m *MountManager) Wait() {
	if m.done != nil {
		<-m.done
	}
}

// Unmount requests the kernel tear down the mount.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.host == nil {
		return nil
	}
	if !m.host.Unmount() {
		return fmt.Errorf("cgofusebridge: unmount %s failed", m.opts.MountPoint)
	}
	m.mounted = false
	return nil
}
