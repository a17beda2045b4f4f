package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when the store lock could not be acquired in time
var ErrLockTimeout = errors.New("store lock timeout")

// DefaultLockTimeout bounds how long a mutation waits for other writers
const DefaultLockTimeout = 5 * time.Second

const (
	lockFilePerm   = 0o600
	lockMaxBackoff = 25 * time.Millisecond
	lockFirstWait  = time.Millisecond
	lockSuffix     = ".lock"
	modeExclusive  = "exclusive"
	modeShared     = "shared"
)

// Lock is a held advisory lock on a store's sidecar lock file. Close
// releases it and is idempotent.
type Lock struct {
	mu   sync.Mutex
	file *os.File
	mode string
}

// Mode reports whether the lock is exclusive or shared
func (l *Lock) Mode() string {
	return l.mode
}

// Close releases the lock and closes the lock file
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking store lock: %w", unlockErr)
	}
	if closeErr != nil {
		closeErr = fmt.Errorf("closing store lock: %w", closeErr)
	}
	return errors.Join(unlockErr, closeErr)
}

// acquireLock polls a non-blocking flock on path until it succeeds, the
// timeout expires or ctx is done. The lock file is never removed, so every
// process coordinates on the same inode.
func acquireLock(ctx context.Context, path string, how int, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	mode := modeExclusive
	if how == unix.LOCK_SH {
		mode = modeShared
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	backoff := lockFirstWait

	for {
		err := flockRetryEINTR(int(file.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file, mode: mode}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = file.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s lock on %s after %s", ErrLockTimeout, mode, path, timeout)
		}

		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = file.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, lockMaxBackoff)
	}
}

func flockRetryEINTR(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
