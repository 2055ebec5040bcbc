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
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/interlock/internal/log"
	"github.com/tombee/interlock/pkg/filelock"
	"github.com/tombee/interlock/pkg/sigdefer"
)

// newRunCommand creates the run command.
func newRunCommand(state *globalState) *cobra.Command {
	var opts lockFlags

	cmd := &cobra.Command{
		Use:   "run --lock PATH -- command [args...]",
		Short: "Run a command while holding an exclusive file lock",
		Long: `Run a command while holding an exclusive advisory lock on PATH's
sidecar lock file. Other interlock invocations (and anything else
cooperating on the same lock file) wait until the command finishes.

Unless --no-defer is given, SIGTERM received while the command runs is
deferred until it exits, then re-delivered.

The command's exit code is passed through. Exit code 73 means the lock
could not be acquired before the timeout.`,
		Example: `  interlock run --lock /var/lib/app/state.json -- update-state
  interlock run --lock /tmp/job --timeout 5s --poll 100ms -- sh -c 'slow-job'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(state, &opts, cmd.Flags(), args)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

// lockFlags are the acquisition flags shared by run and write. Values not
// set on the command line fall back to the settings file.
type lockFlags struct {
	lockPath string
	timeout  time.Duration
	poll     time.Duration
	noDefer  bool
}

func (f *lockFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.lockPath, "lock", "", "Path of the resource to lock (the .lock sidecar is derived from it)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Maximum time to wait for the lock (0 waits forever)")
	fs.DurationVar(&f.poll, "poll", 0, "Delay between lock acquisition attempts")
	fs.BoolVar(&f.noDefer, "no-defer", false, "Do not defer SIGTERM while the work runs")
}

// newLock builds a filelock.Lock from the flags and the settings file.
func (f *lockFlags) newLock(state *globalState, fs *pflag.FlagSet, protected string) *filelock.Lock {
	timeout := f.timeout
	if !fs.Changed("timeout") {
		timeout = time.Duration(state.cfg.Lock.Timeout)
	}
	poll := f.poll
	if !fs.Changed("poll") {
		poll = time.Duration(state.cfg.Lock.PollInterval)
	}

	return filelock.New(protected,
		filelock.WithTimeout(timeout),
		filelock.WithPollInterval(poll),
		filelock.WithLogger(state.logger),
	)
}

func runRun(state *globalState, opts *lockFlags, fs *pflag.FlagSet, args []string) error {
	if opts.lockPath == "" {
		return errors.New("--lock is required")
	}

	lock := opts.newLock(state, fs, opts.lockPath)

	start := time.Now()
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, filelock.ErrTimeout) {
			return NewLockTimeoutError(err)
		}
		return err
	}
	defer lock.Release()

	state.logger.Debug("lock acquired",
		slog.String(log.LockPathKey, lock.LockPath()),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()))

	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	state.logger.Debug("running command under lock",
		slog.String(log.CommandKey, args[0]),
		slog.String(log.LockPathKey, lock.LockPath()))

	work := child.Run
	if !opts.noDefer {
		work = sigdefer.Wrap(work)
	}

	err := work()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		// The child already reported its failure on stderr; just relay
		// its exit code.
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}
