// Copyright (c) Microsoft Corporation. All rights reserved.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/pkg/concurrency"
)

// HotReloadSession keeps the launched application updatable by injecting
// incremental code changes without a full restart. Source changes under the
// project root trigger reloads on every device for as long as the session is resident.
type HotReloadSession struct {
	runners              []DeviceRunner
	config               Config
	benchmark            bool
	saveCompilationTrace bool
	log                  logr.Logger
}

func NewHotReloadSession(runners []DeviceRunner, config Config, benchmark, saveCompilationTrace bool, log logr.Logger) *HotReloadSession {
	return &HotReloadSession{
		runners:              runners,
		config:               config,
		benchmark:            benchmark,
		saveCompilationTrace: saveCompilationTrace,
		log:                  log.WithName("hot-session"),
	}
}

func (s *HotReloadSession) Run(ctx context.Context, started *concurrency.OnceValue[time.Time], route string, shouldBuild bool) (int32, error) {
	opts := StartOptions{
		Route:                route,
		ShouldBuild:          shouldBuild,
		Target:               s.config.Target,
		Debugging:            s.config.Debugging,
		AppBinary:            s.config.AppBinary,
		EnvFiles:             s.config.EnvFiles,
		IPv6:                 s.config.IPv6,
		SaveCompilationTrace: s.saveCompilationTrace,
	}

	for r := 0; r < len(s.runners); r++ {
		runner := s.runners[r]
		if err := runner.Start(ctx, opts); err != nil {
			s.stopRunners(ctx, s.runners[:r])
			return startFailureExitCode, fmt.Errorf("could not start a live-reload session on device '%s': %w", runner.Device().Name(), err)
		}
		s.log.Info("application running", "device", runner.Device().Name())
	}

	started.Fire(time.Now())

	if s.benchmark {
		s.benchmarkReload(ctx)
	}

	if !s.config.Resident {
		// Leave the apps running and detach.
		return 0, nil
	}

	watcher, err := watchForChanges(ctx, s.config.ProjectRoot, func() { s.reloadAll(ctx) }, s.log)
	if err != nil {
		s.stopRunners(ctx, s.runners)
		return startFailureExitCode, fmt.Errorf("could not watch project root '%s' for changes: %w", s.config.ProjectRoot, err)
	}
	defer watcher.Close()

	exit := <-waitForExits(ctx, s.runners)
	if exit.err != nil {
		return startFailureExitCode, fmt.Errorf("lost track of the application on device '%s': %w", exit.runner.Device().Name(), exit.err)
	}

	// One app exiting ends the whole session.
	s.stopRunners(ctx, s.runners)
	return exit.code, nil
}

func (s *HotReloadSession) reloadAll(ctx context.Context) {
	for _, runner := range s.runners {
		reloadStart := time.Now()
		if err := runner.Reload(ctx, false); err != nil {
			s.log.Error(err, "reload failed", "device", runner.Device().Name())
			continue
		}
		s.log.Info("reloaded", "device", runner.Device().Name(), "elapsed", time.Since(reloadStart))
	}
}

// A benchmark run measures one reload round-trip right after startup.
func (s *HotReloadSession) benchmarkReload(ctx context.Context) {
	benchmarkStart := time.Now()
	s.reloadAll(ctx)
	s.log.Info("reload benchmark completed", "elapsed", time.Since(benchmarkStart))
}

func (s *HotReloadSession) stopRunners(ctx context.Context, runners []DeviceRunner) {
	for _, runner := range runners {
		if err := runner.Stop(ctx); err != nil {
			s.log.V(1).Info("could not stop application", "device", runner.Device().Name(), "error", err.Error())
		}
	}
}

var _ Session = (*HotReloadSession)(nil)
