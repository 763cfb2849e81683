// Copyright (c) Microsoft Corporation. All rights reserved.

package process

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	gops "github.com/shirou/gopsutil/v4/process"
)

const (
	// How long to wait for a process to honor a termination request before it is killed outright.
	gracefulStopTimeout = 3 * time.Second
	stopPollInterval    = 100 * time.Millisecond
)

type OSExecutor struct {
	log logr.Logger
}

func NewOSExecutor(log logr.Logger) Executor {
	return &OSExecutor{
		log: log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler ProcessExitHandler) (int32, func(), error) {
	if err := cmd.Start(); err != nil {
		return UnknownPID, nil, err
	}

	pid := int32(cmd.Process.Pid)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	// Exit notifications are held back until the caller signals it is ready to receive them.
	// This prevents the handler from observing an exit before the caller finished recording
	// the fact that the process was started at all.
	notifyEnabled := make(chan struct{})
	var enableOnce sync.Once

	go func() {
		var waitErr error

		select {
		case waitErr = <-waitCh:
			// The process exited before the context expired.

		case <-ctx.Done():
			stopErr := e.StopProcess(pid)
			if stopErr != nil {
				e.log.Error(stopErr, "could not stop process upon context expiration", "PID", pid)
			}
			waitErr = <-waitCh
		}

		<-notifyEnabled

		if handler != nil {
			exitCode, execErr := processExecResult(waitErr, cmd)
			handler.OnProcessExited(pid, exitCode, execErr)
		}
	}()

	startWaitForProcessExit := func() {
		enableOnce.Do(func() { close(notifyEnabled) })
	}

	return pid, startWaitForProcessExit, nil
}

func (e *OSExecutor) StopProcess(pid int32) error {
	proc, err := gops.NewProcess(pid)
	if err != nil {
		// The process is already gone; nothing to stop.
		return nil
	}

	if running, runErr := proc.IsRunning(); runErr == nil && !running {
		return nil
	}

	e.log.V(1).Info("stopping process", "PID", pid)

	if termErr := proc.Terminate(); termErr != nil {
		return proc.Kill()
	}

	deadline := time.Now().Add(gracefulStopTimeout)
	for time.Now().Before(deadline) {
		if running, runErr := proc.IsRunning(); runErr != nil || !running {
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	return proc.Kill()
}

// Returns the process exit code and execution error depending on the result of the command wait call.
func processExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	} else if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	} else {
		return UnknownExitCode, waitErr
	}
}

var _ Executor = (*OSExecutor)(nil)
