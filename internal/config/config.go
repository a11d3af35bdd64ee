// Package config implements bucse's mount-time configuration (C9 ambient
// stack): a small Configuration struct loadable from a YAML file,
// environment variables, and CLI flags, in that precedence (flags win).
//
// Grounded on the teacher's internal/config/config.go (gopkg.in/yaml.v2,
// NewDefault/LoadFromFile/LoadFromEnv/Validate shape), trimmed to bucse's
// much smaller surface: the teacher's write-buffer/compression/circuit-
// breaker/TLS knobs apply to its S3-specific backend and stay out of this
// mount-level config (the S3 Destination variant in internal/store/s3 takes
// its settings from the AWS SDK's default configuration).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// Configuration is bucse-mount's configuration surface (spec §4.9/§6.5).
type Configuration struct {
	// Repository is the URL of the repository to mount (file://, ssh://,
	// s3://, or a bare path).
	Repository string `yaml:"repository"`
	// Passphrase decrypts an "aes" repository; if empty and the cipher
	// requires one, bucse-mount prompts interactively.
	Passphrase string `yaml:"passphrase"`
	// ReadOnly rejects write operations at the operations layer.
	ReadOnly bool `yaml:"read_only"`
	// LogLevel is one of error, warning, note, debug, verbose_debug (spec §7).
	LogLevel string `yaml:"log_level"`
	// CacheMaxEntries and CacheMaxBytes are checked by Validate but not
	// applied: repo.Mount builds the block cache with its fixed bounds
	// (1024 entries, 250 MiB) whatever these hold.
	CacheMaxEntries int   `yaml:"cache_max_entries"`
	CacheMaxBytes   int64 `yaml:"cache_max_bytes"`
	// PollIntervalSeconds is the concurrency harness's tick period (spec
	// §4.10 default: 1).
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// MetricsListenAddr, if non-empty, starts a Prometheus /metrics HTTP
	// listener (spec SPEC_FULL DOMAIN STACK [EXPANSION]).
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
}

// NewDefault returns bucse-mount's defaults before any file/env/flag overrides.
func NewDefault() *Configuration {
	return &Configuration{
		LogLevel:            "note",
		CacheMaxEntries:     1024,
		CacheMaxBytes:       250 << 20,
		PollIntervalSeconds: 1,
	}
}

// LoadFromFile merges a YAML config file's fields over the receiver's
// current values: fields present in the file overwrite, fields absent from
// it are left unchanged. Call it before LoadFromEnv/flag parsing so those
// take precedence.
func (c *Configuration) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeStoreRead, "failed to read config file").
			WithComponent("config").WithCause(err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to parse config file").
			WithComponent("config").WithCause(err)
	}
	return nil
}

// LoadFromEnv overrides fields from BUCSE_* environment variables.
func (c *Configuration) LoadFromEnv() error {
	if v := os.Getenv("BUCSE_REPOSITORY"); v != "" {
		c.Repository = v
	}
	if v := os.Getenv("BUCSE_PASSPHRASE"); v != "" {
		c.Passphrase = v
	}
	if v := os.Getenv("BUCSE_READ_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "BUCSE_READ_ONLY must be a bool").
				WithComponent("config").WithCause(err)
		}
		c.ReadOnly = b
	}
	if v := os.Getenv("BUCSE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BUCSE_POLL_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "BUCSE_POLL_INTERVAL_SECONDS must be an int").
				WithComponent("config").WithCause(err)
		}
		c.PollIntervalSeconds = n
	}
	if v := os.Getenv("BUCSE_METRICS_LISTEN_ADDR"); v != "" {
		c.MetricsListenAddr = v
	}
	return nil
}

// SaveToFile writes the configuration back out as YAML.
func (c *Configuration) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to encode config").
			WithComponent("config").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeStoreWrite, "failed to write config file").
			WithComponent("config").WithCause(err)
	}
	return nil
}

// Validate checks the configuration is internally consistent.
func (c *Configuration) Validate() error {
	if c.Repository == "" {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "repository URL is required").WithComponent("config")
	}
	if c.PollIntervalSeconds <= 0 {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "poll_interval_seconds must be positive").WithComponent("config")
	}
	if c.CacheMaxEntries <= 0 {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "cache_max_entries must be positive").WithComponent("config")
	}
	if c.CacheMaxBytes <= 0 {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "cache_max_bytes must be positive").WithComponent("config")
	}
	switch c.LogLevel {
	case "error", "warning", "note", "debug", "verbose_debug":
	default:
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON,
			fmt.Sprintf("unknown log level %q", c.LogLevel)).WithComponent("config")
	}
	return nil
}
