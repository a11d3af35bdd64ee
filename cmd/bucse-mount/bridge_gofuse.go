//go:build !cgofuse

package main

import "github.com/bchodorowski/bucse/internal/fusebridge"

// newMounter selects go-fuse/v2 as the kernel bridge, the primary adapter
// per spec §4.8 (Linux). Build with -tags cgofuse to select cgofusebridge
// instead (darwin/windows).
func newMounter(opts bridgeOptions) mounter {
	return fusebridge.NewMountManager(fusebridge.MountOptions{
		MountPoint: opts.MountPoint,
		ReadOnly:   opts.ReadOnly,
		AllowOther: opts.AllowOther,
		Debug:      opts.Debug,
	})
}
