// Package lockfile implements a cross-platform advisory exclusive lock on
// a single file, used to serialize WAL appends and compaction across
// processes sharing a data directory.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// ErrLockTimeout is returned by AcquireTimeout when the deadline elapses
// before the lock becomes available.
var ErrLockTimeout = errors.New("timed out waiting to acquire lock")

// IsLocked reports whether err indicates the lock is held elsewhere.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLockBusy)
}

// Lock represents an exclusive advisory lock on a file path. The zero
// value is not usable; construct with New.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock bound to path. The lock file is created on first
// Acquire/TryAcquire call if it does not already exist.
func New(path string) *Lock {
	return &Lock{path: path}
}

// TryAcquire attempts to acquire the lock without blocking, returning
// ErrLockBusy immediately if another process holds it.
func (l *Lock) TryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}
	if err := FlockExclusiveNonBlock(f); err != nil {
		f.Close()
		if IsLocked(err) {
			return ErrLockBusy
		}
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

// Acquire blocks until the lock is available or ctx is cancelled.
func (l *Lock) Acquire(ctx context.Context) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}
	done := make(chan error, 1)
	go func() { done <- FlockExclusiveBlocking(f) }()
	select {
	case err := <-done:
		if err != nil {
			f.Close()
			return fmt.Errorf("flock %s: %w", l.path, err)
		}
		l.file = f
		return nil
	case <-ctx.Done():
		f.Close()
		return ctx.Err()
	}
}

// AcquireTimeout polls for the lock at a bounded interval (capped at
// 10ms) until it succeeds or timeout elapses, returning ErrLockTimeout on
// expiry.
func (l *Lock) AcquireTimeout(timeout time.Duration) error {
	b := backoff.NewConstantBackOff(10 * time.Millisecond)
	bounded := backoff.WithMaxElapsedTime(b, timeout)

	err := backoff.Retry(func() error {
		acquireErr := l.TryAcquire()
		if acquireErr == nil {
			return nil
		}
		if IsLocked(acquireErr) {
			return acquireErr
		}
		return backoff.Permanent(acquireErr)
	}, bounded)

	if err != nil {
		if IsLocked(err) {
			return ErrLockTimeout
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		return ErrLockTimeout
	}
	return nil
}

// Release unlocks and closes the lock file. It is safe to call on an
// unacquired Lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := FlockUnlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file %s: %w", l.path, closeErr)
	}
	return nil
}

// File returns the underlying os.File, valid only while the lock is held.
// WAL append uses this to seek/write/fsync under the same held lock.
func (l *Lock) File() *os.File {
	return l.file
}
