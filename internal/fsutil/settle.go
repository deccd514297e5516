package fsutil

import (
	"context"
	"os"
	"time"

	"github.com/arloliu/scanrelay/internal/backoff"
)

// Settled reports whether path has stopped changing for at least window.
//
// The advisory lock only excludes writers that lock too; a scanner writing
// without one shows up as a size or modification time that still moves.
// A file modified less than window ago is checked again once the rest of the
// window has passed. A window <= 0 disables the check.
//
// Returns:
//   - bool: true when the file is old enough or did not change during the window
//   - error: Stat failure (os.ErrNotExist when the file vanished) or ctx error
func Settled(ctx context.Context, path string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	before, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	age := time.Since(before.ModTime())
	if age >= window {
		return true, nil
	}
	// a modification time in the future still waits one window at most
	if err := backoff.Sleep(ctx, min(window-age, window)); err != nil {
		return false, err
	}

	after, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return after.Size() == before.Size() && after.ModTime().Equal(before.ModTime()), nil
}
