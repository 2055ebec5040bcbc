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

// Package cli wires up the interlock command-line interface.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/interlock/internal/config"
	"github.com/tombee/interlock/internal/log"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// globalState carries flag values and per-invocation state shared by all
// subcommands.
type globalState struct {
	verbose    bool
	quiet      bool
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root Cobra command for interlock.
func NewRootCommand() *cobra.Command {
	state := &globalState{}

	cmd := &cobra.Command{
		Use:   "interlock",
		Short: "interlock - run critical sections under cross-process file locks",
		Long: `interlock guards small units of work against two hazards: concurrent
access from other processes, and termination signals arriving mid-operation.

'interlock run' executes a command while holding an exclusive advisory lock
on a sidecar file, so independently launched processes touching the same
resource serialize. 'interlock write' replaces a file atomically under the
same lock, with SIGTERM deferred until the write completes.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup()
		},
	}

	cmd.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&state.quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "Path to config file (default: ~/.config/interlock/config.yaml)")

	cmd.AddCommand(newRunCommand(state))
	cmd.AddCommand(newWriteCommand(state))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// setup loads the settings file and builds the logger. It runs once per
// invocation, before any subcommand.
func (s *globalState) setup() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg

	logCfg := log.FromEnv()
	if logCfg.Level == "info" {
		// Settings file applies only when the environment didn't decide.
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" && logCfg.Format == log.FormatAuto {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	switch {
	case s.verbose:
		logCfg.Level = "debug"
	case s.quiet:
		logCfg.Level = "error"
	}

	s.logger = log.New(logCfg)
	slog.SetDefault(s.logger)
	return nil
}
