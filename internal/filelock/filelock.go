// Package filelock implements the per-cluster exclusive advisory lock
// that guards every agent invocation against a concurrent one touching
// the same cluster's on-disk state.
package filelock

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cephadm/cephadm/internal/agenterr"
)

// Lock is a reentrant wrapper around an OS advisory flock on a file
// under the lock directory, named after the cluster it guards. The lock
// file is created on first acquire and is never removed: deleting a
// flock'd file races a concurrent acquirer that has already opened the
// old inode.
type Lock struct {
	mu       sync.Mutex
	path     string
	log      zerolog.Logger
	fd       int
	counter  int
	pollEvery time.Duration
}

// New returns a Lock for the named cluster, creating dir if necessary.
func New(dir, name string, log zerolog.Logger) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, agenterr.Wrap(agenterr.KindExternalCommand, "filelock.New", "create lock dir", err)
	}
	return &Lock{
		path:      filepath.Join(dir, name+".lock"),
		log:       log.With().Str("component", "filelock").Str("lock", name).Logger(),
		fd:        -1,
		pollEvery: 50 * time.Millisecond,
	}, nil
}

// IsLocked reports whether this process currently holds the lock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fd >= 0
}

// Acquire blocks until the lock is held or timeout elapses. timeout < 0
// waits forever. Acquire is reentrant: nested Acquire/Release pairs from
// the same Lock value only release the OS lock once the outermost
// Release runs.
func (l *Lock) Acquire(timeout time.Duration) error {
	l.mu.Lock()
	l.counter++
	l.mu.Unlock()

	start := time.Now()
	for {
		l.mu.Lock()
		locked := l.fd >= 0
		if !locked {
			if err := l.tryAcquire(); err == nil {
				locked = true
			}
		}
		stillHeld := l.fd >= 0
		l.mu.Unlock()

		if locked && stillHeld {
			l.log.Debug().Msg("lock acquired")
			return nil
		}
		if timeout >= 0 && time.Since(start) > timeout {
			l.mu.Lock()
			l.counter--
			l.mu.Unlock()
			l.log.Warn().Msg("timeout acquiring lock")
			return agenterr.New(agenterr.KindLockTimeout, "filelock.Acquire", l.path)
		}
		time.Sleep(l.pollEvery)
	}
}

func (l *Lock) tryAcquire() error {
	fd, err := unix.Open(l.path, unix.O_RDWR|unix.O_CREAT, 0o600)
	if err != nil {
		return err
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return err
	}
	l.fd = fd
	return nil
}

// Release decrements the reentrant counter, releasing the OS lock once
// it reaches zero. force releases immediately regardless of counter,
// used from a deferred cleanup path.
func (l *Lock) Release(force bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd < 0 {
		return
	}
	l.counter--
	if l.counter > 0 && !force {
		return
	}
	unix.Flock(l.fd, unix.LOCK_UN)
	unix.Close(l.fd)
	l.fd = -1
	l.counter = 0
	l.log.Debug().Msg("lock released")
}

// With acquires the lock, runs fn, and releases it unconditionally
// afterward.
func (l *Lock) With(timeout time.Duration, fn func() error) error {
	if err := l.Acquire(timeout); err != nil {
		return err
	}
	defer l.Release(false)
	return fn()
}
