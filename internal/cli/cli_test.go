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

package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/interlock/pkg/filelock"
)

// newTestRoot builds the root command with config and output isolated from
// the developer's environment.
func newTestRoot(t *testing.T) (root *cobra.Command, stdout, stderr *bytes.Buffer) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("LOG_FORMAT", "json")

	root = NewRootCommand()
	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root, stdout, stderr
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error passthrough", &ExitError{Code: 7}, 7},
		{"lock timeout", NewLockTimeoutError(filelock.ErrTimeout), ExitLockTimeout},
		{"wrapped exit error", &ExitError{Code: 3, Message: "m", Cause: errors.New("c")}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	e := &ExitError{Code: 1, Message: "acquire", Cause: errors.New("denied")}
	assert.Equal(t, "acquire: denied", e.Error())
	assert.Equal(t, "denied", (&ExitError{Code: 1, Cause: errors.New("denied")}).Error())
	assert.Equal(t, "denied", errors.Unwrap(e).Error())
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-01-01")
	root, stdout, _ := newTestRoot(t)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	out := stdout.String()
	assert.Contains(t, out, "interlock version 1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestWriteCommandReplacesTarget(t *testing.T) {
	root, _, _ := newTestRoot(t)
	target := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	root.SetIn(strings.NewReader(`{"v":2}`))
	root.SetArgs([]string{"write", target})

	require.NoError(t, root.Execute())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	// The sidecar lock file is cleaned up on release.
	assert.NoFileExists(t, target+filelock.LockSuffix)
}

func TestWriteCommandTimesOutAgainstHeldLock(t *testing.T) {
	root, _, _ := newTestRoot(t)
	target := filepath.Join(t.TempDir(), "state.json")

	holder := filelock.New(target)
	require.NoError(t, holder.Acquire())
	defer holder.Release()

	root.SetIn(strings.NewReader("blocked"))
	root.SetArgs([]string{"write", "--timeout", "150ms", "--poll", "25ms", target})

	err := root.Execute()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitLockTimeout, exitErr.Code)
	assert.ErrorIs(t, err, filelock.ErrTimeout)

	// Target untouched.
	assert.NoFileExists(t, target)
}

func TestRunCommandRequiresLockFlag(t *testing.T) {
	root, _, _ := newTestRoot(t)
	root.SetArgs([]string{"run", "--", "true"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--lock is required")
}

func TestRunCommandRelaysChildExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, _, _ := newTestRoot(t)
	lockPath := filepath.Join(t.TempDir(), "job")

	root.SetArgs([]string{"run", "--lock", lockPath, "--", "sh", "-c", "exit 7"})

	err := root.Execute()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.Code)
}

func TestRunCommandReleasesLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, _, _ := newTestRoot(t)
	lockPath := filepath.Join(t.TempDir(), "job")

	root.SetArgs([]string{"run", "--lock", lockPath, "--", "true"})
	require.NoError(t, root.Execute())

	// Lock must be free and the sidecar gone.
	probe := filelock.New(lockPath, filelock.WithTimeout(time.Second))
	require.NoError(t, probe.Acquire())
	probe.Release()
	assert.NoFileExists(t, lockPath+filelock.LockSuffix)
}
