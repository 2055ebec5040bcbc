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

/*
Package filelock provides a cross-process advisory file lock with polling
acquisition, a configurable timeout, and idempotent release.

A Lock protects a resource by convention: it never opens the protected path
itself. Instead it takes an OS-level exclusive advisory lock (flock on Unix,
LockFileEx on Windows) on a sidecar file derived from the protected path by
appending ".lock". Any process that creates a Lock for the same path and
checks it cooperates in the exclusion; processes that ignore the sidecar are
not restrained. This is mutual exclusion among well-behaved participants,
not a security boundary.

# Usage

	lock := filelock.New("/var/lib/app/state.json",
	    filelock.WithTimeout(5*time.Second))
	if err := lock.Acquire(); err != nil {
	    // errors.Is(err, filelock.ErrTimeout) => another process holds it
	    return err
	}
	defer lock.Release()
	// read or write /var/lib/app/state.json

or, scoped:

	err := lock.With(func() error {
	    // critical section
	    return nil
	})

# Semantics and limitations

Acquisition polls: it attempts a non-blocking exclusive lock, and on
contention sleeps for the poll interval and retries until the timeout
elapses (a zero timeout waits forever). The serialization point is the
kernel's advisory-lock table, not any in-process primitive, so acquisition
order among contending processes is whatever the kernel's wakeup order
happens to be; fairness is not promised.

The sidecar file's contents carry no meaning. It is opened in append mode so
that acquiring a lock never truncates content some other program may have
put there. On release the sidecar is unlinked best-effort; its absence does
not mean the lock is free, because another process may delete or recreate
the file while a lock on the old inode is still held. That is an inherent
property of path-based advisory locking and callers should not treat the
file's existence as state.

A Lock is a per-handle object and is not safe for concurrent use by
multiple goroutines. Two Lock handles in one process pointing at the same
path are arbitrated only by the OS lock; the handle-local state does not
prevent the second handle from opening the sidecar.

Every Lock registers its release with the lifecycle registry when it
acquires, so a lock still held when the process runs lifecycle.Cleanup is
released rather than leaked until the kernel reaps the descriptor.
*/
package filelock
