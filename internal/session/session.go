// Copyright (c) Microsoft Corporation. All rights reserved.

package session

import (
	"context"
	"time"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/pkg/concurrency"
)

const (
	// Exit code reported when a session fails before the application reaches a runnable state.
	startFailureExitCode int32 = 2
)

// Session drives one application launch across the validated device set to completion.
// There are two variants: live-reload (hot) and one-shot (cold). A session is
// constructed once per invocation, selected at construction time, and never
// switched mid-invocation.
type Session interface {
	// Runs the session. The started signal fires exactly once, when the application
	// has reached a runnable state; it may never fire if startup fails.
	// When the session is resident, Run suspends for the lifetime of the app session.
	// Returns the session exit code; 0 means success.
	Run(ctx context.Context, started *concurrency.OnceValue[time.Time], route string, shouldBuild bool) (int32, error)
}

// DeviceContext pairs a validated target device with its per-device build options.
type DeviceContext struct {
	Device devices.TargetDevice
	Build  build.DeviceOptions
}

// Config is the configuration surface shared by both session variants.
type Config struct {
	// Path to the target entry file of the application.
	Target string

	Debugging build.DebuggingOptions

	// Pre-built application binary. Mutually exclusive with building before running.
	AppBinary string

	// Project root; the live-reload watcher observes this tree.
	ProjectRoot string

	// Additional .env files merged into the application environment.
	EnvFiles []string

	// Prefer dual-stack (IPv6) networking for device communication.
	IPv6 bool

	// Keep the process alive after launch to continue interacting with the running session.
	Resident bool
}

// StartOptions is what a session passes to each device runner when launching the app.
type StartOptions struct {
	Route       string
	ShouldBuild bool

	Target    string
	Debugging build.DebuggingOptions
	AppBinary string
	EnvFiles  []string
	IPv6      bool

	// Live-reload sessions only: persist a compilation trace when the session ends.
	SaveCompilationTrace bool

	// One-shot sessions only: trace application startup.
	TraceStartup bool
}

// DeviceRunner launches and controls the application on a single device.
// Implementations own all per-device state exclusively for the invocation's lifetime.
type DeviceRunner interface {
	Device() devices.TargetDevice

	// Launches the application. Returns once the app is running (or failed to start).
	Start(ctx context.Context, opts StartOptions) error

	// Applies pending source changes to the running application.
	// fullRestart discards app state instead of injecting changes incrementally.
	Reload(ctx context.Context, fullRestart bool) error

	// Stops the running application.
	Stop(ctx context.Context) error

	// Blocks until the application exits and returns its exit code.
	WaitExit(ctx context.Context) (int32, error)
}

// RunnerFactory builds the device runner for one device context.
// The concrete engine behind the runner is the factory's business.
type RunnerFactory interface {
	NewRunner(devCtx DeviceContext) (DeviceRunner, error)
}

type runnerExit struct {
	runner DeviceRunner
	code   int32
	err    error
}

// Starts one goroutine per runner waiting for app exit; results arrive on the returned channel.
func waitForExits(ctx context.Context, runners []DeviceRunner) <-chan runnerExit {
	exits := make(chan runnerExit, len(runners))
	for _, r := range runners {
		r := r
		go func() {
			code, err := r.WaitExit(ctx)
			exits <- runnerExit{runner: r, code: code, err: err}
		}()
	}
	return exits
}
