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

package main

import (
	"os"

	"github.com/tombee/interlock/internal/cli"
	"github.com/tombee/interlock/pkg/lifecycle"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	err := cli.NewRootCommand().Execute()
	code := cli.ExitCode(err)

	// os.Exit skips deferred functions, so outstanding cleanup (a lock
	// still held after an abnormal error path) runs explicitly first.
	lifecycle.Cleanup()
	os.Exit(code)
}
