package edisonfs

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/gofrs/flock"
)

// Lock wraps an advisory sidecar ".lock" file guarding a single entity's
// mutation, matching spec.md §4.3's "advisory file lock with timeout"
// concurrency requirement. It is safe to create many Lock values for the
// same path; flock serializes at the OS level.
type Lock struct {
	fl *flock.Flock
}

// LockPathFor returns the sidecar lock path for an entity file, e.g.
// "tasks/wip/150.md" -> "tasks/wip/.150.md.lock".
func LockPathFor(entityPath string) string {
	dir, file := path.Split(entityPath)
	return dir + "." + file + ".lock"
}

// NewLock creates a Lock for the given sidecar lock file path. The lock
// file itself is not created until Acquire is called.
func NewLock(lockPath string) *Lock {
	return &Lock{fl: flock.New(lockPath)}
}

// Acquire blocks until the lock is obtained or timeout elapses, returning an
// error if the timeout is reached first. Call the returned release function
// (or Release) once the guarded mutation completes.
func (l *Lock) Acquire(timeout time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire lock %s: timed out after %s", l.fl.Path(), timeout)
	}
	return func() { _ = l.fl.Unlock() }, nil
}

// Release unlocks the lock if held. It is safe to call even if Acquire was
// never called or already failed.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
