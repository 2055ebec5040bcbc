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

//go:build unix

package sigdefer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raise delivers sig to the current process.
func raise(t *testing.T, sig syscall.Signal) {
	t.Helper()
	require.NoError(t, syscall.Kill(os.Getpid(), sig))
}

// recv waits for a signal on ch or fails the test.
func recv(t *testing.T, ch <-chan os.Signal) os.Signal {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
		return nil
	}
}

func TestProtectRunsToCompletionDespiteSignal(t *testing.T) {
	// Stand in for the "previous handler": an existing subscriber that
	// must observe the signal once the guard is gone. It also keeps the
	// re-delivered SIGUSR1 from killing the test process.
	prev := make(chan os.Signal, 4)
	signal.Notify(prev, syscall.SIGUSR1)
	defer signal.Stop(prev)

	completed := false
	err := Protect(func() error {
		raise(t, syscall.SIGUSR1)
		// Go fans signals out to every subscriber, so the existing one
		// sees this delivery too; drain it so the channel is empty when
		// we wait for the re-delivery below.
		recv(t, prev)
		time.Sleep(50 * time.Millisecond)
		completed = true
		return nil
	}, WithSignal(syscall.SIGUSR1))

	require.NoError(t, err)
	assert.True(t, completed, "work unit did not run to completion")

	// The captured signal must be re-delivered after the guard removed
	// its handler, landing on the prior subscriber.
	recv(t, prev)
}

func TestProtectWithoutSignalIsTransparent(t *testing.T) {
	calls := 0
	err := Protect(func() error {
		calls++
		return nil
	}, WithSignal(syscall.SIGUSR1))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestProtectPropagatesErrorAfterRestore(t *testing.T) {
	prev := make(chan os.Signal, 4)
	signal.Notify(prev, syscall.SIGUSR1)
	defer signal.Stop(prev)

	boom := errors.New("boom")
	err := Protect(func() error { return boom }, WithSignal(syscall.SIGUSR1))
	require.ErrorIs(t, err, boom)

	// The guard's capture must be gone: a fresh signal goes straight to
	// the pre-existing subscriber and nowhere else.
	raise(t, syscall.SIGUSR1)
	recv(t, prev)
}

func TestProtectErrorWithPendingSignal(t *testing.T) {
	prev := make(chan os.Signal, 4)
	signal.Notify(prev, syscall.SIGUSR1)
	defer signal.Stop(prev)

	boom := errors.New("boom")
	err := Protect(func() error {
		raise(t, syscall.SIGUSR1)
		recv(t, prev)
		time.Sleep(50 * time.Millisecond)
		return boom
	}, WithSignal(syscall.SIGUSR1))

	// Error propagates unchanged, and the captured signal is still
	// re-delivered.
	require.ErrorIs(t, err, boom)
	recv(t, prev)
}

func TestWrapPreservesBehavior(t *testing.T) {
	calls := 0
	fn := Wrap(func() error {
		calls++
		return nil
	}, WithSignal(syscall.SIGUSR1))

	require.NoError(t, fn())
	require.NoError(t, fn())
	assert.Equal(t, 2, calls)
}

const (
	childEnv    = "SIGDEFER_TEST_CHILD"
	childOutEnv = "SIGDEFER_TEST_OUT"
)

// TestDefaultDispositionAfterCompletion checks the end-to-end story in a
// real child process: SIGTERM arrives mid-section, the section's writes
// complete fully, and the process then dies from SIGTERM because the
// original disposition (default terminate) is honored.
func TestDefaultDispositionAfterCompletion(t *testing.T) {
	if os.Getenv(childEnv) == "1" {
		defaultDispositionChild()
		return
	}
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	out := filepath.Join(t.TempDir(), "out")
	cmd := exec.Command(os.Args[0], "-test.run", "TestDefaultDispositionAfterCompletion")
	cmd.Env = append(os.Environ(), childEnv+"=1", childOutEnv+"="+out)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	cmd.Stderr = os.Stderr
	require.NoError(t, cmd.Start())

	// Wait until the child is inside the guarded section, then shoot it.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if scanner.Text() == "ready" {
			break
		}
	}
	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))

	err = cmd.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "child should not exit cleanly")
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled(), "child should die from the re-delivered signal")
	assert.Equal(t, syscall.SIGTERM, status.Signal())

	// The critical section's effects must be complete, not truncated.
	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "start\ndone\n", string(data))
}

// defaultDispositionChild runs inside the re-executed test binary. It never
// returns normally: the re-delivered SIGTERM terminates the process right
// after the guarded section finishes.
func defaultDispositionChild() {
	out := os.Getenv(childOutEnv)
	_ = Protect(func() error {
		f, err := os.Create(out)
		if err != nil {
			os.Exit(3)
		}
		fmt.Fprintln(f, "start")
		fmt.Println("ready")

		// Parent sends SIGTERM in this window.
		time.Sleep(1500 * time.Millisecond)

		fmt.Fprintln(f, "done")
		if err := f.Close(); err != nil {
			os.Exit(3)
		}
		return nil
	})

	// Reached only if no signal arrived; the parent fails on the wait
	// status either way.
	os.Exit(0)
}
