// Copyright (c) Microsoft Corporation. All rights reserved.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/pkg/concurrency"
)

// OneShotSession builds, launches and runs the application to completion,
// without incremental update support.
type OneShotSession struct {
	runners      []DeviceRunner
	config       Config
	traceStartup bool
	log          logr.Logger
}

func NewOneShotSession(runners []DeviceRunner, config Config, traceStartup bool, log logr.Logger) *OneShotSession {
	return &OneShotSession{
		runners:      runners,
		config:       config,
		traceStartup: traceStartup,
		log:          log.WithName("cold-session"),
	}
}

func (s *OneShotSession) Run(ctx context.Context, started *concurrency.OnceValue[time.Time], route string, shouldBuild bool) (int32, error) {
	opts := StartOptions{
		Route:        route,
		ShouldBuild:  shouldBuild,
		Target:       s.config.Target,
		Debugging:    s.config.Debugging,
		AppBinary:    s.config.AppBinary,
		EnvFiles:     s.config.EnvFiles,
		IPv6:         s.config.IPv6,
		TraceStartup: s.traceStartup,
	}

	for r := 0; r < len(s.runners); r++ {
		runner := s.runners[r]
		if err := runner.Start(ctx, opts); err != nil {
			s.stopRunners(ctx, s.runners[:r])
			return startFailureExitCode, fmt.Errorf("could not start the application on device '%s': %w", runner.Device().Name(), err)
		}
		s.log.Info("application running", "device", runner.Device().Name())
	}

	started.Fire(time.Now())

	if !s.config.Resident {
		// Leave the apps running and detach.
		return 0, nil
	}

	// Run to completion on every device; the first nonzero exit code wins.
	exits := waitForExits(ctx, s.runners)
	var exitCode int32
	for range s.runners {
		exit := <-exits
		if exit.err != nil {
			return startFailureExitCode, fmt.Errorf("lost track of the application on device '%s': %w", exit.runner.Device().Name(), exit.err)
		}
		s.log.V(1).Info("application exited", "device", exit.runner.Device().Name(), "exitCode", exit.code)
		if exitCode == 0 && exit.code != 0 {
			exitCode = exit.code
		}
	}

	return exitCode, nil
}

func (s *OneShotSession) stopRunners(ctx context.Context, runners []DeviceRunner) {
	for _, runner := range runners {
		if err := runner.Stop(ctx); err != nil {
			s.log.V(1).Info("could not stop application", "device", runner.Device().Name(), "error", err.Error())
		}
	}
}

var _ Session = (*OneShotSession)(nil)
