package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()
	assert.Equal(t, "note", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.CacheMaxEntries)
	assert.EqualValues(t, 250<<20, cfg.CacheMaxBytes)
	assert.Equal(t, 1, cfg.PollIntervalSeconds)
}

func TestValidateRequiresRepository(t *testing.T) {
	cfg := NewDefault()
	assert.Error(t, cfg.Validate())
	cfg.Repository = "/tmp/repo"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := NewDefault()
	cfg.Repository = "/tmp/repo"
	cfg.LogLevel = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoadFromFile(t *testing.T) {
	cfg := NewDefault()
	cfg.Repository = "/tmp/repo"
	cfg.Passphrase = "secret"

	path := filepath.Join(t.TempDir(), "bucse.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	loaded := NewDefault()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Repository, loaded.Repository)
	assert.Equal(t, cfg.Passphrase, loaded.Passphrase)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BUCSE_REPOSITORY", "ssh://host/repo")
	t.Setenv("BUCSE_READ_ONLY", "true")
	t.Setenv("BUCSE_POLL_INTERVAL_SECONDS", "2")

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "ssh://host/repo", cfg.Repository)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 2, cfg.PollIntervalSeconds)
}
