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
	"fmt"
	"os"
)

// Exit codes for the interlock CLI.
const (
	ExitSuccess = 0
	ExitFailure = 1
	// ExitLockTimeout distinguishes "another process holds the lock" from
	// real failures, so scripts can retry it. 73 is EX_CANTCREAT from
	// sysexits.h, the closest conventional code for "couldn't obtain the
	// resource".
	ExitLockTimeout = 73
)

// ExitError is an error that carries an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewLockTimeoutError creates an error for lock acquisition timeouts.
func NewLockTimeoutError(cause error) *ExitError {
	return &ExitError{
		Code:  ExitLockTimeout,
		Cause: cause,
	}
}

// ExitCode reports the process exit code for err, printing the error to
// stderr when there is something worth saying. An ExitError with no
// message and no cause passes a code through silently (used to relay a
// child process's exit status, which already reported itself).
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" || exitErr.Cause != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr)
		}
		return exitErr.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitFailure
}
