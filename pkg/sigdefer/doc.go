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
Package sigdefer postpones handling of a termination signal until a unit of
work completes.

A process that is killed partway through a critical section (writing a
state file, committing a multi-step change) can leave truncated or
corrupted effects behind. Protect runs a function with the guarded signal's
default disposition suspended: a signal arriving mid-execution is captured,
the function runs to completion, and only then is the signal re-delivered
so that whatever behavior applied before the guard (default termination,
ignore, or another subscriber in the process) takes effect.

	err := sigdefer.Protect(func() error {
	    return store.Flush() // completes even if SIGTERM arrives
	})

The guarded signal defaults to SIGTERM and can be changed with WithSignal.
Wrap produces a guarded callable with the same signature, for composing
with other wrapping layers; methods need no special treatment, since the
caller's closure carries the receiver:

	flush := sigdefer.Wrap(store.Flush)

# Constraints

Signal disposition is process-global state. Only one Protect call per
signal may be in flight at a time; concurrent or nested guards for the same
signal are unsupported, not detected.

Go's signal delivery is additive: other goroutines subscribed to the same
signal via signal.Notify still observe it while the guarded function runs.
The guard removes the hazard the primitive exists for, termination mid-
section, but it cannot and does not hide the signal from the rest of the
process.
*/
package sigdefer
