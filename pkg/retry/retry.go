// Package retry provides exponential-backoff retry for bucse's Object Store
// calls (C1): network round trips to an SFTP or S3 backend are the
// operations that actually fail transiently; the local-directory backend
// does not use it.
package retry

import (
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/bchodorowski/bucse/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig is a sensible default for a remote object store backend.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer executes a function, retrying it on retryable errors.
type Retryer struct {
	config Config
}

// New constructs a Retryer, filling in DefaultConfig for zero fields.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do executes fn, retrying while the returned error is a *errors.BucseError
// with Retryable set (see errors.IsRetryableByDefault). Any other error,
// including a plain transport error from net or pkg/sftp that a backend has
// not wrapped, is returned at once without retrying.
func (r *Retryer) Do(fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt >= r.config.MaxAttempts || !isRetryable(err) {
			return err
		}
		time.Sleep(r.delay(attempt))
	}
	return fmt.Errorf("retry: attempts exhausted after %d tries: %w", r.config.MaxAttempts, lastErr)
}

func isRetryable(err error) bool {
	var bucseErr *errors.BucseError
	if stderr.As(err, &bucseErr) {
		return bucseErr.Retryable
	}
	return false
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}
