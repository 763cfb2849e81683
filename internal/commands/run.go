// Copyright (c) Microsoft Corporation. All rights reserved.

package commands

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/internal/engine"
	"github.com/microsoft/devrun/internal/launcher"
	"github.com/microsoft/devrun/internal/machine"
	"github.com/microsoft/devrun/pkg/logger"
	"github.com/microsoft/devrun/pkg/process"
)

// runFlags is the raw flag surface of the launch operation. It is turned into
// launcher options once, when the command runs; nothing reads flag state later.
type runFlags struct {
	deviceIDs  []string
	allDevices bool

	mode   string
	target string
	route  string

	hotReload bool
	machine   bool
	resident  bool

	buildBeforeRun bool
	appBinary      string
	projectRoot    string
	outputPath     string
	packagesFile   string

	filesystemRoots  []string
	filesystemScheme string
	viewFilter       string

	trackWidgetCreation bool
	ipv6                bool

	benchmark            bool
	saveCompilationTrace bool
	traceStartup         bool

	envFiles []string

	startPaused            bool
	useTestFonts           bool
	softwareRendering      bool
	deterministicRendering bool
	traceCompositor        bool
	observatoryPort        int
}

var launchFlags runFlags

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&launchFlags.deviceIDs, "device", "d", nil, "Target device ID (may be abbreviated to a unique prefix). Repeat for multiple devices.")
	fs.BoolVar(&launchFlags.allDevices, "all-devices", false, "Launch on all attached devices.")

	fs.StringVar(&launchFlags.mode, "mode", string(build.ProfileDebug), "Build profile: debug, profile, instrumented, or release.")
	fs.StringVarP(&launchFlags.target, "target", "t", "lib/main.app", "Path to the application entry file.")
	fs.StringVar(&launchFlags.route, "route", "", "Initial route to pass to the application.")

	fs.BoolVar(&launchFlags.hotReload, "hot", true, "Apply source changes to the running application via live reload (debug profile only).")
	fs.BoolVar(&launchFlags.machine, "machine", false, "Hand session startup off to an external control server.")
	fs.BoolVar(&launchFlags.resident, "resident", true, "Stay attached to the running application.")

	fs.BoolVar(&launchFlags.buildBeforeRun, "build", true, "Build the application before running it.")
	fs.StringVar(&launchFlags.appBinary, "use-application-binary", "", "Launch a pre-built application binary instead of building.")
	fs.StringVar(&launchFlags.projectRoot, "project-root", "", "Project root (defaults to the current working directory).")
	fs.StringVar(&launchFlags.outputPath, "output-path", "", "Path where the compiled output artifact is placed.")
	fs.StringVar(&launchFlags.packagesFile, "packages", "", "Path to the package resolution file.")

	fs.StringArrayVar(&launchFlags.filesystemRoots, "filesystem-root", nil, "Filesystem root passed through to the compiler. Repeatable.")
	fs.StringVar(&launchFlags.filesystemScheme, "filesystem-scheme", "", "Filesystem scheme passed through to the compiler.")
	fs.StringVar(&launchFlags.viewFilter, "view-filter", "", "Restrict the session to views whose names match the filter.")

	fs.BoolVar(&launchFlags.trackWidgetCreation, "track-widget-creation", false, "Instrument the build to track widget creation locations.")
	fs.BoolVar(&launchFlags.ipv6, "ipv6", false, "Prefer dual-stack (IPv6) networking for device communication.")

	fs.BoolVar(&launchFlags.benchmark, "benchmark", false, "Measure a reload round-trip right after startup (live reload only).")
	fs.BoolVar(&launchFlags.saveCompilationTrace, "train", false, "Persist a compilation trace when the session ends (debug and instrumented profiles only).")
	fs.BoolVar(&launchFlags.traceStartup, "trace-startup", false, "Trace application startup (one-shot launches only).")

	fs.StringArrayVar(&launchFlags.envFiles, "env-file", nil, "Additional .env file merged into the application environment. Repeatable.")

	fs.BoolVar(&launchFlags.startPaused, "start-paused", false, "Start the application paused, waiting for a debugger to attach.")
	fs.BoolVar(&launchFlags.useTestFonts, "use-test-fonts", false, "Replace all fonts with the test font for reproducible text rendering.")
	fs.BoolVar(&launchFlags.softwareRendering, "enable-software-rendering", false, "Force software rendering.")
	fs.BoolVar(&launchFlags.deterministicRendering, "skia-deterministic-rendering", false, "Force deterministic rendering output.")
	fs.BoolVar(&launchFlags.traceCompositor, "trace-compositor", false, "Trace compositor activity.")
	fs.IntVar(&launchFlags.observatoryPort, "observatory-port", 0, "Port for the debugging service (0 picks a free port).")
}

func (f *runFlags) toOptions() (*launcher.Options, error) {
	profile, err := build.ParseProfile(f.mode)
	if err != nil {
		return nil, err
	}

	projectRoot := f.projectRoot
	if projectRoot == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			projectRoot = cwd
		}
	}

	return &launcher.Options{
		Target:  f.target,
		Profile: profile,
		Debugging: build.DebuggingFlags{
			StartPaused:            f.startPaused,
			UseTestFonts:           f.useTestFonts,
			SoftwareRendering:      f.softwareRendering,
			DeterministicRendering: f.deterministicRendering,
			TraceCompositor:        f.traceCompositor,
			ObservatoryPort:        f.observatoryPort,
		},
		HotReload:            f.hotReload,
		Machine:              f.machine,
		Route:                f.route,
		Resident:             f.resident,
		Build:                f.buildBeforeRun,
		AppBinary:            f.appBinary,
		ProjectRoot:          projectRoot,
		OutputPath:           f.outputPath,
		PackagesFile:         f.packagesFile,
		FilesystemRoots:      f.filesystemRoots,
		FilesystemScheme:     f.filesystemScheme,
		ViewFilter:           f.viewFilter,
		TrackWidgetCreation:  f.trackWidgetCreation,
		IPv6:                 f.ipv6,
		Benchmark:            f.benchmark,
		SaveCompilationTrace: f.saveCompilationTrace,
		TraceStartup:         f.traceStartup,
		EnvFiles:             f.envFiles,
	}, nil
}

func runLaunch(log *logger.Logger) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		opts, err := launchFlags.toOptions()
		if err != nil {
			return err
		}

		selector := devices.NewStaticSelector(
			attachedDevices(),
			launchFlags.deviceIDs,
			launchFlags.allDevices,
		)

		executor := process.NewOSExecutor(log.Logger)
		runners := engine.NewFactory(executor, log.Logger)

		var control launcher.ControlServer
		if opts.Machine {
			client, clientErr := machine.NewControlClient(log.Logger)
			if clientErr != nil {
				return clientErr
			}
			control = client
		}

		l := launcher.NewLauncher(selector, runners, control, launcher.NewLogReporter(log.Logger), log.Logger)

		_, err = l.Launch(cmd.Context(), opts)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// attachedDevices enumerates the launch targets available to this process.
// The only discovery backend today is the workstation itself.
func attachedDevices() []devices.TargetDevice {
	return []devices.TargetDevice{
		devices.NewHostDevice(),
	}
}
