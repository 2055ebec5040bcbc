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
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/interlock/internal/log"
	"github.com/tombee/interlock/pkg/atomicfile"
	"github.com/tombee/interlock/pkg/filelock"
	"github.com/tombee/interlock/pkg/sigdefer"
)

// newWriteCommand creates the write command.
func newWriteCommand(state *globalState) *cobra.Command {
	var opts lockFlags

	cmd := &cobra.Command{
		Use:   "write [--lock PATH] TARGET",
		Short: "Replace a file atomically under an exclusive lock",
		Long: `Read stdin and replace TARGET with it, holding an exclusive advisory
lock for the duration and writing through a temporary file that is renamed
over TARGET only once the content is complete. TARGET is never observed
half-written, by other processes or after a crash.

The lock defaults to TARGET itself (its .lock sidecar); pass --lock to
serialize on a different path. SIGTERM is deferred until the write
completes unless --no-defer is given.`,
		Example: `  generate-state | interlock write /var/lib/app/state.json
  some-tool | interlock write --lock /var/lib/app/state.json /var/lib/app/index.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(state, &opts, cmd, args[0])
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func runWrite(state *globalState, opts *lockFlags, cmd *cobra.Command, target string) error {
	lockPath := opts.lockPath
	if lockPath == "" {
		lockPath = target
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return err
	}

	lock := opts.newLock(state, cmd.Flags(), lockPath)

	work := func() error {
		return lock.With(func() error {
			state.logger.Debug("writing under lock",
				slog.String(log.LockPathKey, lock.LockPath()),
				slog.String("target", target))
			return atomicfile.WriteFile(target, data, 0o644)
		})
	}
	if !opts.noDefer {
		work = sigdefer.Wrap(work)
	}

	if err := work(); err != nil {
		if errors.Is(err, filelock.ErrTimeout) {
			return NewLockTimeoutError(err)
		}
		return err
	}
	return nil
}
