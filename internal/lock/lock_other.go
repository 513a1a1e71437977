//go:build !darwin && !linux

package lock

// WithExclusiveFileLock is a best-effort no-op on unsupported platforms.
func WithExclusiveFileLock(_ string, fn func() error) error {
	return fn()
}

// TryExclusiveFileLock is a best-effort no-op on unsupported platforms.
func TryExclusiveFileLock(_ string, fn func() error) error {
	return fn()
}
