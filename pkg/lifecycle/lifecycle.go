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

// Package lifecycle maintains a registry of cleanup actions to run before
// the process exits.
//
// Go has no equivalent of atexit: deferred functions do not run on os.Exit,
// and nothing runs automatically when main returns through an error path
// that calls os.Exit directly. This package makes the cleanup list explicit
// instead. Resources that must not outlive the process (held file locks,
// temporary state) register a cleanup function when they become live and
// deregister it when they are released normally. The program's entry point
// calls Cleanup exactly once on its way out:
//
//	func main() {
//	    code := run()
//	    lifecycle.Cleanup()
//	    os.Exit(code)
//	}
//
// Cleanup runs outstanding actions in reverse registration order, so
// resources acquired later are released first. A panic in one action does
// not prevent the remaining actions from running.
package lifecycle

import (
	"sync"
)

// Registry is an ordered collection of cleanup actions. The zero value is
// ready to use. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries []*Handle
}

// Handle identifies a single registered cleanup action.
type Handle struct {
	reg  *Registry
	name string
	fn   func()
	done bool
}

// Register adds fn to the registry and returns a handle that can remove it
// again. The name is informational and appears in Handle.Name; it does not
// need to be unique.
func (r *Registry) Register(name string, fn func()) *Handle {
	h := &Handle{reg: r, name: name, fn: fn}
	r.mu.Lock()
	r.entries = append(r.entries, h)
	r.mu.Unlock()
	return h
}

// Cleanup runs every outstanding cleanup action in reverse registration
// order and empties the registry. Actions registered while Cleanup is
// running are not executed by this call. Calling Cleanup again is a no-op
// until something new is registered.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].run()
	}
}

// Len reports the number of outstanding cleanup actions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.entries {
		if !h.done {
			n++
		}
	}
	return n
}

// Name returns the name the handle was registered under.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// Deregister removes the action from its registry without running it.
// Deregistering an already-removed or already-run handle is a no-op, so it
// is safe to call from a resource's release path even if Cleanup got there
// first.
func (h *Handle) Deregister() {
	if h == nil {
		return
	}
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	for i, e := range h.reg.entries {
		if e == h {
			h.reg.entries = append(h.reg.entries[:i], h.reg.entries[i+1:]...)
			break
		}
	}
}

func (h *Handle) run() {
	h.reg.mu.Lock()
	if h.done {
		h.reg.mu.Unlock()
		return
	}
	h.done = true
	fn := h.fn
	h.reg.mu.Unlock()

	defer func() {
		// A panicking cleanup must not starve the ones behind it.
		_ = recover()
	}()
	fn()
}

// defaultRegistry backs the package-level functions.
var defaultRegistry = &Registry{}

// Register adds fn to the process-wide default registry.
func Register(name string, fn func()) *Handle {
	return defaultRegistry.Register(name, fn)
}

// Cleanup runs the process-wide default registry.
func Cleanup() {
	defaultRegistry.Cleanup()
}
