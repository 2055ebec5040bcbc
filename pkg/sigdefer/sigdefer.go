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

package sigdefer

import (
	"os"
	"os/signal"
	"syscall"
)

// Option configures a guard.
type Option func(*guard)

// WithSignal sets the signal whose handling is deferred. The default is
// SIGTERM, the conventional graceful-termination request sent by process
// managers and container runtimes.
func WithSignal(sig os.Signal) Option {
	return func(g *guard) {
		if sig != nil {
			g.sig = sig
		}
	}
}

type guard struct {
	sig os.Signal
}

// Protect runs fn with the guarded signal's handling deferred until fn
// returns.
//
// While fn runs, an arriving guarded signal is captured instead of
// terminating the process. When fn completes, by returning or by
// panicking, the capture is removed first, restoring the disposition that
// applied before the call; then, if a signal was captured, it is
// re-delivered to the process so that the prior disposition runs: default
// termination terminates the process now, an ignored signal stays ignored,
// and any other signal.Notify subscribers receive it. fn's error (or
// panic) propagates unchanged, except that re-delivery of a
// default-disposition signal ends the process before Protect returns.
//
// Protect is not safe for concurrent use with the same signal; see the
// package documentation.
func Protect(fn func() error, opts ...Option) error {
	g := &guard{sig: syscall.SIGTERM}
	for _, opt := range opts {
		opt(g)
	}

	// Buffer of one so a signal arriving while fn runs is never dropped.
	// A second arrival of the same signal coalesces, which matches the
	// single pending slot the deferral semantics call for.
	pending := make(chan os.Signal, 1)
	signal.Notify(pending, g.sig)

	defer func() {
		// Restoration must happen on every exit path, and before any
		// re-delivery, so the re-delivered signal is handled by the
		// prior disposition rather than captured again.
		signal.Stop(pending)
		select {
		case sig := <-pending:
			redeliver(sig)
		default:
		}
	}()

	return fn()
}

// Wrap returns a callable identical to fn except that every invocation is
// guarded by Protect.
func Wrap(fn func() error, opts ...Option) func() error {
	return func() error {
		return Protect(fn, opts...)
	}
}

// redeliver sends sig back to the current process. With the capture already
// removed, delivery follows whatever disposition is now in effect.
func redeliver(sig os.Signal) {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	// Failure here means the platform cannot signal itself; there is no
	// disposition left to honor.
	_ = p.Signal(sig)
}
