package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/arloliu/scanrelay/internal/backoff"
	"github.com/arloliu/scanrelay/types"
)

var errLocked = errors.New("advisory lock held")

// Default retry policy values.
const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

// RetryPolicy bounds how long an exclusive operation waits for a busy file.
type RetryPolicy struct {
	// Attempts is the total number of lock attempts (DefaultAttempts when <= 0).
	Attempts int
	// Delay is the pause between attempts.
	Delay time.Duration
	// OnRetry, when set, is called after every failed attempt.
	OnRetry func(path string, attempt int, err error)
}

// DefaultPolicy returns the standard policy: 3 attempts 5 seconds apart.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// Remove deletes path once exclusive access is acquired.
//
// A file that no longer exists is treated as already removed.
func Remove(ctx context.Context, path string, policy RetryPolicy) error {
	err := withExclusive(ctx, path, policy, func(_ *os.File) error {
		return os.Remove(path)
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// Move renames src to dst once exclusive access to src is acquired.
func Move(ctx context.Context, src, dst string, policy RetryPolicy) error {
	return withExclusive(ctx, src, policy, func(_ *os.File) error {
		return os.Rename(src, dst)
	})
}

// ReadAll reads path once exclusive access is acquired.
func ReadAll(ctx context.Context, path string, policy RetryPolicy) ([]byte, error) {
	var data []byte
	err := withExclusive(ctx, path, policy, func(f *os.File) error {
		if f == nil {
			var err error
			data, err = os.ReadFile(path)

			return err
		}

		var err error
		data, err = io.ReadAll(f)

		return err
	})

	return data, err
}

// withExclusive runs op while path is exclusively held.
//
// op receives the locked handle on platforms where the lock spans the
// operation and nil elsewhere.
func withExclusive(ctx context.Context, path string, policy RetryPolicy, op func(f *os.File) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		f, err := acquire(path)
		if err == nil {
			if lockSpansOperation {
				defer func() {
					unlock(f)
					_ = f.Close()
				}()

				return op(f)
			}
			_ = f.Close()

			return op(nil)
		}

		if errors.Is(err, os.ErrNotExist) {
			return err
		}

		lastErr = err
		if policy.OnRetry != nil {
			policy.OnRetry(path, attempt, err)
		}

		if attempt < attempts {
			if err := backoff.Sleep(ctx, policy.Delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", types.ErrFileLocked, path, attempts, lastErr)
}

func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, openFlag, 0)
	if err != nil {
		return nil, err
	}

	if err := tryLock(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	return f, nil
}
