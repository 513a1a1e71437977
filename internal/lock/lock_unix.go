//go:build darwin || linux

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// WithExclusiveFileLock runs fn while holding an exclusive advisory lock on
// lockPath, waiting for any current holder to finish.
func WithExclusiveFileLock(lockPath string, fn func() error) error {
	return withFlock(lockPath, unix.LOCK_EX, fn)
}

// TryExclusiveFileLock is WithExclusiveFileLock without the wait: if another
// process holds lockPath it returns ErrLocked and fn is not called.
func TryExclusiveFileLock(lockPath string, fn func() error) error {
	return withFlock(lockPath, unix.LOCK_EX|unix.LOCK_NB, fn)
}

func withFlock(lockPath string, how int, fn func() error) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	return fn()
}
