// Copyright (c) Microsoft Corporation. All rights reserved.

package launcher

import (
	"errors"
	"fmt"
)

// Every launch failure is fatal to the invocation: nothing is retried and there
// is no partial-success state. The sentinels below are wrapped with context at
// the failure site; code-carrying failures get their own types.
var (
	ErrNoDevicesFound             = errors.New("no target devices found")
	ErrUnsupportedCombination     = errors.New("unsupported combination of launch options")
	ErrModeNotSupportedOnEmulator = errors.New("build profile is not supported on an emulator")
	ErrReloadUnsupported          = errors.New("device does not support live reload")
	ErrInvalidFlagCombination     = errors.New("invalid flag combination")
)

// LaunchFailedError reports a failed control-protocol handoff. The delegated
// server's message is surfaced verbatim; there is no structured exit code.
type LaunchFailedError struct {
	Message string
}

func (e *LaunchFailedError) Error() string {
	return e.Message
}

// SessionExitError reports a session that ran and exited with a nonzero code.
// The code is propagated as the process exit status.
type SessionExitError struct {
	Code int32
}

func (e *SessionExitError) Error() string {
	return fmt.Sprintf("application finished with exit code %d", e.Code)
}

// ExitStatus maps an invocation error to the process exit status: 0 on success,
// the session's own exit code when one exists, otherwise a generic failure status.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}

	var sessionExit *SessionExitError
	if errors.As(err, &sessionExit) && sessionExit.Code > 0 {
		return int(sessionExit.Code)
	}

	return 1
}
