// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filelock

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/interlock/pkg/lifecycle"
)

var (
	// ErrTimeout is returned by Acquire when the lock could not be
	// acquired within the configured timeout. It is the only expected
	// acquisition failure; callers may retry it. Any other error from
	// Acquire is an unexpected OS failure and should be treated as
	// non-retryable.
	ErrTimeout = errors.New("lock acquisition timed out")
)

const (
	// LockSuffix is appended to the protected path to derive the sidecar
	// lock file path.
	LockSuffix = ".lock"

	// DefaultPollInterval is how long Acquire waits between attempts when
	// no poll interval is configured.
	DefaultPollInterval = 50 * time.Millisecond
)

// Lock is an exclusive advisory lock on a sidecar file derived from a
// protected path. See the package documentation for semantics.
type Lock struct {
	path     string
	lockPath string
	timeout  time.Duration
	poll     time.Duration
	logger   *slog.Logger

	// file is owned exclusively by this handle. It is opened lazily on
	// the first acquisition attempt and stays open while the lock is
	// held; Release closes it.
	file    *os.File
	locked  bool
	cleanup *lifecycle.Handle
}

// Option configures a Lock.
type Option func(*Lock)

// WithTimeout bounds how long Acquire waits for the lock. Zero, the
// default, waits forever.
func WithTimeout(d time.Duration) Option {
	return func(l *Lock) { l.timeout = d }
}

// WithPollInterval sets the delay between acquisition attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithLogger sets the logger used for best-effort failures during release.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Lock guarding protectedPath. The protected path itself is
// never opened; the lock file is protectedPath + LockSuffix. New performs
// no I/O.
func New(protectedPath string, opts ...Option) *Lock {
	l := &Lock{
		path:     protectedPath,
		lockPath: protectedPath + LockSuffix,
		poll:     DefaultPollInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the protected path the lock was created for.
func (l *Lock) Path() string { return l.path }

// LockPath returns the path of the sidecar lock file.
func (l *Lock) LockPath() string { return l.lockPath }

// Locked reports whether this handle currently holds the lock. It says
// nothing about other handles or other processes.
func (l *Lock) Locked() bool { return l.locked }

// Acquire takes the lock, waiting if another process holds it. It polls at
// the configured interval until the lock is acquired or the timeout
// elapses, in which case it returns an error satisfying
// errors.Is(err, ErrTimeout). Acquiring a lock this handle already holds
// returns nil immediately.
//
// Unexpected OS errors (anything other than the kernel reporting the lock
// as held elsewhere) abort the wait and are returned wrapped.
func (l *Lock) Acquire() error {
	if l.locked {
		return nil
	}

	start := time.Now()
	for {
		if l.timeout > 0 && time.Since(start) >= l.timeout {
			return fmt.Errorf("%w after %v: %s", ErrTimeout, l.timeout, l.lockPath)
		}

		ok, err := l.try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		time.Sleep(l.poll)
	}
}

// TryAcquire makes a single non-blocking attempt. It returns true when the
// lock was acquired, and false immediately when another process holds it.
// It also returns false when this handle already holds the lock.
func (l *Lock) TryAcquire() (bool, error) {
	if l.locked {
		return false, nil
	}
	return l.try()
}

// try opens the lock file if needed and makes one non-blocking attempt at
// the OS lock. It reports contention as (false, nil).
func (l *Lock) try() (bool, error) {
	if l.file == nil {
		// Append mode: never truncate whatever is already in the
		// sidecar file.
		f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return false, fmt.Errorf("open lock file: %w", err)
		}
		l.file = f
	}

	err := lockExclusive(l.file)
	if err == nil {
		l.locked = true
		l.cleanup = lifecycle.Register("filelock "+l.lockPath, func() { l.Release() })
		return true, nil
	}
	if isContention(err) {
		return false, nil
	}
	return false, fmt.Errorf("lock %s: %w", l.lockPath, err)
}

// Release drops the lock. It reports whether a held lock was actually
// released: releasing a handle that does not hold the lock is a no-op
// returning false, so Release may be called unconditionally (including from
// process-exit cleanup after an explicit release already happened).
//
// The OS unlock, the close, and the unlink of the sidecar file are all
// best-effort: their failure is logged and otherwise ignored, since none of
// them can retroactively invalidate the critical section the lock guarded.
func (l *Lock) Release() bool {
	if !l.locked {
		return false
	}

	if err := lockRelease(l.file); err != nil {
		l.logger.Warn("failed to release OS lock",
			slog.String("lock_path", l.lockPath),
			slog.Any("error", err))
	}
	l.locked = false

	if err := l.file.Close(); err != nil {
		l.logger.Warn("failed to close lock file",
			slog.String("lock_path", l.lockPath),
			slog.Any("error", err))
	}
	l.file = nil

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		l.logger.Debug("failed to remove lock file",
			slog.String("lock_path", l.lockPath),
			slog.Any("error", err))
	}

	l.cleanup.Deregister()
	l.cleanup = nil
	return true
}

// With runs fn while holding the lock. The lock is acquired with the
// blocking semantics of Acquire and released on every exit path, including
// when fn returns an error or panics.
func (l *Lock) With(fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
