// Package lock serializes maintenance passes over a mailbox root with
// advisory file locks. Mailbox items themselves are never locked this way;
// they are claimed with marker files.
package lock

import "errors"

// ErrLocked is returned by TryExclusiveFileLock when the lock is held elsewhere.
var ErrLocked = errors.New("lock held by another process")
