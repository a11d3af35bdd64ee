//go:build cgofuse

package main

import "github.com/bchodorowski/bucse/internal/cgofusebridge"

// newMounter selects cgofuse as the kernel bridge (darwin/windows), built
// only when the "cgofuse" build tag is passed.
func newMounter(opts bridgeOptions) mounter {
	return cgofusebridge.NewMountManager(cgofusebridge.MountOptions{
		MountPoint: opts.MountPoint,
		ReadOnly:   opts.ReadOnly,
		AllowOther: opts.AllowOther,
	})
}
