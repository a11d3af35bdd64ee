package main

import "github.com/bchodorowski/bucse/internal/repo"

// bridgeOptions carries the mount-time kernel-bridge flags common to both
// the go-fuse (default) and cgofuse (darwin/windows, build tag "cgofuse")
// adapters; newMounter (platform-selected, see bridge_gofuse.go/
// bridge_cgofuse.go) translates it into the bridge's own MountOptions type.
type bridgeOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
}

// mounter is the subset of fusebridge.MountManager / cgofusebridge.MountManager
// that main needs; the operations layer underneath is identical either way
// (spec §4.8: "oblivious to which [bridge] is in use"), so main drives
// whichever implementation newMounter selects through this interface alone.
type mounter interface {
	Mount(r *repo.Repository) error
	Wait()
	Unmount() error
}
