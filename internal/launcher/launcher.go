// Copyright (c) Microsoft Corporation. All rights reserved.

// Package launcher orchestrates one application launch invocation: it resolves
// and validates the attached target devices, derives the debugging configuration
// from the build profile, picks the session strategy (live-reload or one-shot,
// or control-protocol handoff in machine mode), and supervises the session to
// completion. The orchestrator holds no mutable state across invocations.
package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/internal/session"
)

type Launcher struct {
	selector devices.Selector
	runners  session.RunnerFactory

	// Optional; required only when machine-mode launches are requested.
	control ControlServer

	reporter Reporter
	log      logr.Logger
}

func NewLauncher(
	selector devices.Selector,
	runners session.RunnerFactory,
	control ControlServer,
	reporter Reporter,
	log logr.Logger,
) *Launcher {
	return &Launcher{
		selector: selector,
		runners:  runners,
		control:  control,
		reporter: reporter,
		log:      log.WithName("launcher"),
	}
}

// Launch performs one launch invocation end to end. It returns the launch
// result when a session (direct or delegated) actually ran; failures before
// that point return a nil result. A nonzero session exit surfaces as a
// SessionExitError alongside the result.
func (l *Launcher) Launch(ctx context.Context, opts *Options) (*LaunchResult, error) {
	devs, err := l.selector.ResolveTargetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not resolve target devices: %w", err)
	}

	facts, err := devices.Probe(ctx, devs)
	if err != nil {
		return nil, err
	}

	liveReload := opts.liveReloadSelected()

	if err := validateDevices(facts, opts, l.selector.HasRequestedAllDevices(), liveReload, l.log); err != nil {
		return nil, err
	}

	debugging := build.NewDebuggingOptions(opts.Profile, opts.Debugging)

	if opts.Machine {
		return l.launchViaControlServer(ctx, opts, facts, debugging, liveReload)
	}

	return l.launchDirect(ctx, opts, facts, debugging, liveReload)
}

// launchDirect builds a per-device runner set, constructs the session variant
// the options select, and supervises it to completion.
func (l *Launcher) launchDirect(
	ctx context.Context,
	opts *Options,
	facts []devices.Facts,
	debugging build.DebuggingOptions,
	liveReload bool,
) (*LaunchResult, error) {
	runners := make([]session.DeviceRunner, 0, len(facts))
	for _, f := range facts {
		devCtx := session.DeviceContext{
			Device: f.Device,
			Build: build.DeviceOptions{
				TrackWidgetCreation: opts.TrackWidgetCreation,
				OutputPath:          opts.OutputPath,
				FilesystemRoots:     opts.FilesystemRoots,
				FilesystemScheme:    opts.FilesystemScheme,
				ViewFilter:          opts.ViewFilter,
			},
		}

		runner, err := l.runners.NewRunner(devCtx)
		if err != nil {
			return nil, fmt.Errorf("could not create a runner for device '%s': %w", f.Device.Name(), err)
		}
		runners = append(runners, runner)
	}

	config := session.Config{
		Target:      opts.Target,
		Debugging:   debugging,
		AppBinary:   opts.AppBinary,
		ProjectRoot: opts.ProjectRoot,
		EnvFiles:    opts.EnvFiles,
		IPv6:        opts.IPv6,
		Resident:    opts.Resident,
	}

	var sess session.Session
	if liveReload {
		sess = session.NewHotReloadSession(runners, config, opts.Benchmark, opts.SaveCompilationTrace, l.log)
	} else {
		sess = session.NewOneShotSession(runners, config, opts.TraceStartup, l.log)
	}

	exitCode, startedAt, err := superviseSession(ctx, sess, opts.Route, opts.shouldBuild(), l.log)

	result := &LaunchResult{
		ExitCode:   exitCode,
		StartedAt:  startedAt,
		LabelParts: launchLabelParts(liveReload, opts.Profile.String(), facts),
	}
	l.reporter.Report(result)

	if err != nil {
		return result, err
	}
	if exitCode != 0 {
		return result, &SessionExitError{Code: exitCode}
	}
	return result, nil
}

// launchViaControlServer hands session startup off to the external control
// server and waits for the delegated session to complete. The orchestrator
// drives nothing on this path; it only relays the outcome.
func (l *Launcher) launchViaControlServer(
	ctx context.Context,
	opts *Options,
	facts []devices.Facts,
	debugging build.DebuggingOptions,
	liveReload bool,
) (*LaunchResult, error) {
	if l.control == nil {
		return nil, fmt.Errorf("%w: machine mode requested but no control server is configured", ErrUnsupportedCombination)
	}
	if len(facts) > 1 {
		return nil, fmt.Errorf("%w: a machine-mode launch targets exactly one device", ErrUnsupportedCombination)
	}
	target := facts[0]

	req := ControlStartRequest{
		DeviceID:          target.Device.ID(),
		DeviceName:        target.Device.Name(),
		WorkingDir:        opts.ProjectRoot,
		TargetFile:        opts.Target,
		Route:             opts.Route,
		Debugging:         debugging,
		LiveReloadEnabled: liveReload,
		PackagesFile:      opts.PackagesFile,
		OutputArtifact:    opts.OutputPath,
		IPv6:              opts.IPv6,
	}

	l.log.V(1).Info("delegating session startup to control server", "device", target.Device.Name())

	delegated, err := l.control.StartApplication(ctx, req)
	if err != nil {
		// The server's message is the user-facing failure; surface it verbatim.
		return nil, &LaunchFailedError{Message: err.Error()}
	}

	// On this path the handoff completing is the closest observable point to
	// the application becoming runnable.
	startedAt := time.Now()

	exitCode, err := delegated.WaitForCompletion(ctx)

	result := &LaunchResult{
		ExitCode:   exitCode,
		StartedAt:  &startedAt,
		LabelParts: []string{machineLabelPart},
	}
	l.reporter.Report(result)

	if err != nil {
		return result, fmt.Errorf("delegated session did not complete cleanly: %w", err)
	}
	if exitCode != 0 {
		return result, &SessionExitError{Code: exitCode}
	}
	return result, nil
}
