// Copyright (c) Microsoft Corporation. All rights reserved.

package launcher

import (
	"github.com/microsoft/devrun/internal/build"
)

// Options is the immutable parsed-configuration value for one launch invocation.
// It is constructed once from the command line and passed by reference into each
// component; no component reads flag state of its own.
type Options struct {
	// Path to the target entry file of the application.
	Target string

	Profile build.Profile

	// Raw debugging flag values; the derived configuration is built per profile.
	Debugging build.DebuggingFlags

	// Live-reload requested (default true). Takes effect only in the debug profile.
	HotReload bool

	// Hand the session off to an external control server instead of driving it directly.
	Machine bool

	// Initial route to pass to the application.
	Route string

	// Keep the process alive after launch.
	Resident bool

	// Build the application before running it.
	Build bool

	// Pre-built application binary to launch instead of building.
	AppBinary string

	// Project root override; defaults to the current working directory.
	ProjectRoot string

	// Path where the compiled output artifact is placed.
	OutputPath string

	// Package resolution file, passed through on the control-protocol path.
	PackagesFile string

	FilesystemRoots  []string
	FilesystemScheme string

	// Restricts the session to views whose names match the filter.
	ViewFilter string

	// Instrument the build so widget creation locations can be tracked.
	TrackWidgetCreation bool

	// Prefer dual-stack (IPv6) networking for device communication.
	IPv6 bool

	// Live-reload only: measure a reload round-trip right after startup.
	Benchmark bool

	// Live-reload only: persist a compilation trace when the session ends.
	SaveCompilationTrace bool

	// One-shot only: trace application startup.
	TraceStartup bool

	// Additional .env files merged into the application environment.
	EnvFiles []string
}

// Live-reload is selected iff the reload flag is enabled AND the build profile
// is the debug profile; every other combination falls through to one-shot.
func (o *Options) liveReloadSelected() bool {
	return o.HotReload && o.Profile == build.ProfileDebug
}

// The session builds before running unless a pre-built binary was supplied
// or building was explicitly disabled.
func (o *Options) shouldBuild() bool {
	return o.AppBinary == "" && o.Build
}
