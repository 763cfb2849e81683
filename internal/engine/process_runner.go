// Copyright (c) Microsoft Corporation. All rights reserved.

// Package engine provides the process-backed device runner: the application is
// launched as a local OS process on the device (used for desktop targets, where
// the workstation itself is the device).
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/internal/session"
	"github.com/microsoft/devrun/pkg/process"
)

// Factory builds process runners. One factory serves all devices of an invocation.
type Factory struct {
	executor process.Executor
	log      logr.Logger
}

func NewFactory(executor process.Executor, log logr.Logger) *Factory {
	return &Factory{
		executor: executor,
		log:      log.WithName("process-engine"),
	}
}

func (f *Factory) NewRunner(devCtx session.DeviceContext) (session.DeviceRunner, error) {
	return &ProcessRunner{
		device:          devCtx.Device,
		buildOpts:       devCtx.Build,
		executor:        f.executor,
		log:             f.log.WithValues("device", devCtx.Device.ID()),
		deliberateStops: map[int32]bool{},
		appExit:         make(chan process.ProcessExitInfo, 1),
	}, nil
}

// ProcessRunner runs the application as one local process and tracks its exit.
// Reload is implemented as a full process restart; exits the runner caused
// itself (stop, restart) are never reported as application exits.
type ProcessRunner struct {
	device    devices.TargetDevice
	buildOpts build.DeviceOptions
	executor  process.Executor
	log       logr.Logger

	lock   sync.Mutex
	pid    int32
	opts   session.StartOptions
	runCtx context.Context

	// PIDs whose upcoming exit was requested by the runner itself.
	deliberateStops map[int32]bool

	// Receives the first exit the application initiated on its own.
	appExit chan process.ProcessExitInfo
}

func (r *ProcessRunner) Device() devices.TargetDevice {
	return r.device
}

func (r *ProcessRunner) Start(ctx context.Context, opts session.StartOptions) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.opts = opts
	r.runCtx = ctx
	return r.startProcessLocked(ctx)
}

// Reload applies pending source changes. A process engine cannot inject code
// into a running process, so every reload is a restart; app state is lost
// either way, making the fullRestart distinction moot here.
func (r *ProcessRunner) Reload(ctx context.Context, fullRestart bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !fullRestart {
		r.log.V(1).Info("incremental reload is not available for process sessions, restarting instead")
	}

	if err := r.stopProcessLocked(); err != nil {
		return fmt.Errorf("could not stop the running application for reload: %w", err)
	}
	return r.startProcessLocked(r.runCtx)
}

func (r *ProcessRunner) Stop(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stopProcessLocked()
}

func (r *ProcessRunner) WaitExit(ctx context.Context) (int32, error) {
	select {
	case info := <-r.appExit:
		return info.ExitCode, info.Err
	case <-ctx.Done():
		return process.UnknownExitCode, ctx.Err()
	}
}

func (r *ProcessRunner) startProcessLocked(ctx context.Context) error {
	cmd := r.makeCommand(ctx)
	r.log.Info("starting application process", "executable", cmd.Path)
	r.log.V(1).Info("process settings",
		"executable", cmd.Path,
		"args", cmd.Args[1:],
		"cwd", cmd.Dir)

	exitCh := make(chan process.ProcessExitInfo, 1)
	pid, startWaitForExit, err := r.executor.StartProcess(ctx, cmd, process.NewChannelProcessExitHandler(exitCh))
	if err != nil {
		return fmt.Errorf("application process could not be started: %w", err)
	}
	r.pid = pid

	go r.forwardAppExit(exitCh)
	startWaitForExit()
	return nil
}

func (r *ProcessRunner) stopProcessLocked() error {
	if r.pid == process.UnknownPID || r.pid == 0 {
		return nil
	}
	r.deliberateStops[r.pid] = true
	err := r.executor.StopProcess(r.pid)
	r.pid = process.UnknownPID
	return err
}

// forwardAppExit surfaces an exit on the application-exit channel unless the
// runner requested it.
func (r *ProcessRunner) forwardAppExit(exitCh <-chan process.ProcessExitInfo) {
	info, ok := <-exitCh
	if !ok {
		return
	}

	r.lock.Lock()
	deliberate := r.deliberateStops[info.PID]
	delete(r.deliberateStops, info.PID)
	r.lock.Unlock()

	if deliberate {
		return
	}

	select {
	case r.appExit <- info:
	default: // A prior exit is already pending; the first one wins.
	}
}

func (r *ProcessRunner) makeCommand(ctx context.Context) *exec.Cmd {
	program := r.opts.AppBinary
	if program == "" {
		program = r.opts.Target
	}

	args := r.makeArgs()

	cmd := exec.CommandContext(ctx, program)
	cmd.Args = append([]string{program}, args...)
	cmd.Env = r.makeEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func (r *ProcessRunner) makeArgs() []string {
	var args []string

	if r.opts.Route != "" {
		args = append(args, "--route="+r.opts.Route)
	}

	dbg := r.opts.Debugging
	if dbg.Enabled {
		args = append(args, "--enable-debugging")
		if dbg.StartPaused {
			args = append(args, "--start-paused")
		}
		if dbg.UseTestFonts {
			args = append(args, "--use-test-fonts")
		}
		if dbg.SoftwareRendering {
			args = append(args, "--enable-software-rendering")
		}
		if dbg.DeterministicRendering {
			args = append(args, "--skia-deterministic-rendering")
		}
		if dbg.TraceCompositor {
			args = append(args, "--trace-compositor")
		}
		if dbg.ObservatoryPort != 0 {
			args = append(args, "--observatory-port="+strconv.Itoa(dbg.ObservatoryPort))
		}
	}

	if r.opts.TraceStartup {
		args = append(args, "--trace-startup")
	}
	if r.opts.SaveCompilationTrace {
		args = append(args, "--save-compilation-trace")
	}

	if r.buildOpts.TrackWidgetCreation {
		args = append(args, "--track-widget-creation")
	}
	for _, root := range r.buildOpts.FilesystemRoots {
		args = append(args, "--filesystem-root="+root)
	}
	if r.buildOpts.FilesystemScheme != "" {
		args = append(args, "--filesystem-scheme="+r.buildOpts.FilesystemScheme)
	}
	if r.buildOpts.ViewFilter != "" {
		args = append(args, "--view-filter="+r.buildOpts.ViewFilter)
	}

	return args
}

func (r *ProcessRunner) makeEnv() []string {
	env := os.Environ() // Include parent process environment.

	if len(r.opts.EnvFiles) > 0 {
		additionalEnv, err := godotenv.Read(r.opts.EnvFiles...)
		if err != nil {
			r.log.Error(err, "environment settings from .env file(s) were not applied", "envFiles", r.opts.EnvFiles)
		} else {
			// Appended after the inherited environment, so on duplicate keys
			// the .env entry wins.
			for key, val := range additionalEnv {
				env = append(env, fmt.Sprintf("%s=%s", key, val))
			}
		}
	}

	if r.opts.IPv6 {
		env = append(env, "DEVRUN_IPV6=1")
	}

	return env
}

var _ session.DeviceRunner = (*ProcessRunner)(nil)
var _ session.RunnerFactory = (*Factory)(nil)
