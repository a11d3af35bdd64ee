package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/pkg/errors"
)

func TestRetryerSucceedsFirstTry(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	r := New(config)

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryerRetriesRetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = time.Millisecond
	r := New(config)

	attempts := 0
	err := r.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrCodeStoreRead, "transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryerGivesUpOnNonRetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 5
	r := New(config)

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeNotFound, "missing")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = time.Millisecond
	r := New(config)

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeStoreWrite, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
