package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunVersionFlag(t *testing.T) {
	assert.Equal(t, 0, run([]string{"-V"}))
}

func TestRunRequiresMountpoint(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-r", "/tmp/somewhere"}))
}

func TestRunRequiresRepository(t *testing.T) {
	assert.Equal(t, 2, run([]string{"/tmp/some-mountpoint"}))
}

func TestMountOptsParsesCommaSeparatedPairs(t *testing.T) {
	m := make(mountOpts)
	assert.NoError(t, m.Set("repository=file:///tmp,ro,verbose=2"))
	assert.Equal(t, "file:///tmp", m["repository"])
	assert.Equal(t, "true", m["ro"])
	assert.Equal(t, "2", m["verbose"])
}
