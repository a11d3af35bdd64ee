package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreatesRepository(t *testing.T) {
	dir := t.TempDir()

	code := run([]string{"-n", "test", "-c", "a comment", dir})
	require.Equal(t, 0, code)

	_, err := os.Stat(filepath.Join(dir, "repository.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "repository"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "storage"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "actions"))
	require.NoError(t, err)
}

func TestRunRejectsMissingRepositoryArg(t *testing.T) {
	code := run([]string{"-n", "test"})
	assert.Equal(t, 2, code)
}

func TestRunVersionFlag(t *testing.T) {
	code := run([]string{"-V"})
	assert.Equal(t, 0, code)
}

func TestRunRejectsAESWithoutPassphraseNonInteractive(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"-e", "aes", dir})
	assert.NotEqual(t, 0, code)
}
