// Copyright (c) Microsoft Corporation. All rights reserved.

package launcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/internal/launcher"
	"github.com/microsoft/devrun/internal/testutil"
	pkgtestutil "github.com/microsoft/devrun/pkg/testutil"
)

const defaultLauncherTestTimeout = 30 * time.Second

type captureReporter struct {
	lock    sync.Mutex
	results []*launcher.LaunchResult
}

func (r *captureReporter) Report(result *launcher.LaunchResult) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.results = append(r.results, result)
}

func (r *captureReporter) single(t *testing.T) *launcher.LaunchResult {
	r.lock.Lock()
	defer r.lock.Unlock()
	require.Len(t, r.results, 1, "expected exactly one reported launch result")
	return r.results[0]
}

func (r *captureReporter) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.results)
}

type fakeControlSession struct {
	exitCode int32
	waitErr  error
}

func (s *fakeControlSession) WaitForCompletion(_ context.Context) (int32, error) {
	return s.exitCode, s.waitErr
}

type fakeControlServer struct {
	startErr error
	session  *fakeControlSession

	lock    sync.Mutex
	lastReq launcher.ControlStartRequest
	starts  int
}

func (s *fakeControlServer) StartApplication(_ context.Context, req launcher.ControlStartRequest) (launcher.ControlSession, error) {
	s.lock.Lock()
	s.lastReq = req
	s.starts++
	s.lock.Unlock()

	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.session, nil
}

type launchFixture struct {
	devices  []devices.TargetDevice
	runners  *testutil.FakeRunnerFactory
	control  *fakeControlServer
	reporter *captureReporter
}

func (f *launchFixture) launcher(requestedAll bool) *launcher.Launcher {
	selector := devices.NewStaticSelector(f.devices, nil, requestedAll)
	return launcher.NewLauncher(
		selector,
		f.runners,
		f.control,
		f.reporter,
		pkgtestutil.NewLogForTesting("launcher-test"),
	)
}

func newLaunchFixture(devs ...*testutil.FakeDevice) *launchFixture {
	f := &launchFixture{
		control:  &fakeControlServer{session: &fakeControlSession{}},
		reporter: &captureReporter{},
	}
	var runners []*testutil.FakeRunner
	for _, d := range devs {
		f.devices = append(f.devices, d)
		runners = append(runners, testutil.NewFakeRunner(d))
	}
	f.runners = testutil.NewFakeRunnerFactory(runners...)
	return f
}

func debugOptions() *launcher.Options {
	return &launcher.Options{
		Target:      "lib/main.app",
		Profile:     build.ProfileDebug,
		HotReload:   true,
		Build:       true,
		ProjectRoot: "/work/app",
	}
}

// A debug launch with live reload enabled on a single physical device is the
// canonical happy path: hot strategy, runnable-state signal fired, exit 0.
func TestLaunchHotDebugSingleDevice(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("pixel-7", "Pixel 7")
	f := newLaunchFixture(dev)

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, int32(0), result.ExitCode)
	assert.NotNil(t, result.StartedAt, "the runnable-state timestamp must be present on success")
	assert.Equal(t, []string{"hot", "debug", "android"}, result.LabelParts)

	runner := f.runners.Runners["pixel-7"]
	assert.Equal(t, int32(1), runner.Starts.Load())
	opts := runner.LastStartOptions()
	assert.True(t, opts.ShouldBuild)
	assert.True(t, opts.Debugging.Enabled)

	reported := f.reporter.single(t)
	assert.Same(t, result, reported)
}

// Strategy selection depends on the reload flag AND the profile: only the debug
// profile honors the flag, everything else runs one-shot.
func TestLaunchStrategySelection(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		profile    build.Profile
		hotReload  bool
		wantReload string
	}{
		{build.ProfileDebug, true, "hot"},
		{build.ProfileDebug, false, "cold"},
		{build.ProfileProfile, true, "cold"},
		{build.ProfileProfile, false, "cold"},
		{build.ProfileInstrumented, true, "cold"},
		{build.ProfileRelease, true, "cold"},
		{build.ProfileRelease, false, "cold"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.profile)+"/hot="+boolName(tc.hotReload), func(t *testing.T) {
			t.Parallel()
			ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
			defer cancel()

			f := newLaunchFixture(testutil.NewFakeDevice("dev-1", "Device One"))

			opts := debugOptions()
			opts.Profile = tc.profile
			opts.HotReload = tc.hotReload

			result, err := f.launcher(false).Launch(ctx, opts)
			require.NoError(t, err)
			require.NotEmpty(t, result.LabelParts)
			assert.Equal(t, tc.wantReload, result.LabelParts[0])
			assert.Equal(t, string(tc.profile), result.LabelParts[1])
		})
	}
}

func boolName(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestLaunchFailsWithoutDevices(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	f := newLaunchFixture()

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.ErrorIs(t, err, launcher.ErrNoDevicesFound)
	assert.Nil(t, result)
	assert.Zero(t, f.reporter.count(), "no result may be reported when validation fails")
}

// A release build cannot run on a local emulator. The failure happens during
// validation, before any runner is asked to start the application.
func TestLaunchRejectsReleaseOnEmulator(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("emu-1", "Android Emulator")
	dev.Emulator = true
	f := newLaunchFixture(dev)

	opts := debugOptions()
	opts.Profile = build.ProfileRelease

	result, err := f.launcher(false).Launch(ctx, opts)
	require.ErrorIs(t, err, launcher.ErrModeNotSupportedOnEmulator)
	assert.Contains(t, err.Error(), "Android Emulator")
	assert.Nil(t, result)
	assert.Equal(t, int32(0), f.runners.Runners["emu-1"].Starts.Load())
}

func TestLaunchDebugOnEmulatorSucceeds(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("emu-1", "Android Emulator")
	dev.Emulator = true
	f := newLaunchFixture(dev)

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "debug", "android", "emulator"}, result.LabelParts)
}

func TestLaunchRejectsPrebuiltBinaryOnAllDevices(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	f := newLaunchFixture(
		testutil.NewFakeDevice("dev-1", "Device One"),
		testutil.NewFakeDevice("dev-2", "Device Two"),
	)

	opts := debugOptions()
	opts.AppBinary = "/prebuilt/app.bin"
	opts.Build = false

	result, err := f.launcher(true).Launch(ctx, opts)
	require.ErrorIs(t, err, launcher.ErrUnsupportedCombination)
	assert.Nil(t, result)
}

func TestLaunchRejectsHotReloadOnUnsupportedDevice(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("web-1", "Web Server")
	dev.LiveReload = false
	dev.Platform = devices.PlatformWeb
	f := newLaunchFixture(dev)

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.ErrorIs(t, err, launcher.ErrReloadUnsupported)
	assert.Contains(t, err.Error(), "Web Server")
	assert.Nil(t, result)

	// The same device is fine once the strategy falls through to one-shot.
	opts := debugOptions()
	opts.HotReload = false
	result, err = f.launcher(false).Launch(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "cold", result.LabelParts[0])
}

func TestLaunchCompilationTraceRequiresSupportingProfile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		profile build.Profile
		wantErr bool
	}{
		{build.ProfileDebug, false},
		{build.ProfileInstrumented, false},
		{build.ProfileProfile, true},
		{build.ProfileRelease, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.profile), func(t *testing.T) {
			t.Parallel()
			ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
			defer cancel()

			f := newLaunchFixture(testutil.NewFakeDevice("dev-1", "Device One"))

			opts := debugOptions()
			opts.Profile = tc.profile
			opts.SaveCompilationTrace = true

			_, err := f.launcher(false).Launch(ctx, opts)
			if tc.wantErr {
				require.ErrorIs(t, err, launcher.ErrInvalidFlagCombination)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// A device may not report any platform kind; the label must not carry an empty
// token in its place.
func TestLaunchLabelDropsEmptyPlatformToken(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	dev.Platform = devices.PlatformKind("")
	f := newLaunchFixture(dev)

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "debug"}, result.LabelParts)
}

// Two devices in one invocation: the session spans both, and the reported label
// collapses the platform to "multiple".
func TestLaunchMultipleDevices(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	android := testutil.NewFakeDevice("dev-a", "Android Phone")
	linux := testutil.NewFakeDevice("dev-l", "Linux Desktop")
	linux.Platform = devices.PlatformLinux
	f := newLaunchFixture(android, linux)

	result, err := f.launcher(true).Launch(ctx, debugOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "debug", "multiple"}, result.LabelParts)
	assert.Equal(t, int32(1), f.runners.Runners["dev-a"].Starts.Load())
	assert.Equal(t, int32(1), f.runners.Runners["dev-l"].Starts.Load())
}

// When startup fails the runnable-state timestamp stays absent and the result
// still reaches the reporter.
func TestLaunchStartFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	f := newLaunchFixture(dev)
	f.runners.Runners["dev-1"].StartErr = errors.New("engine refused to start")

	result, err := f.launcher(false).Launch(ctx, debugOptions())
	require.Error(t, err)
	assert.ErrorContains(t, err, "engine refused to start")
	require.NotNil(t, result)
	assert.Equal(t, int32(2), result.ExitCode)
	assert.Nil(t, result.StartedAt, "the runnable-state timestamp must be absent when startup fails")
	assert.Same(t, result, f.reporter.single(t))
}

// A resident session that ends with a nonzero application exit code surfaces it
// as a SessionExitError and the process exit status matches.
func TestLaunchPropagatesSessionExitCode(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	f := newLaunchFixture(dev)
	f.runners.Runners["dev-1"].SignalExit(7)

	opts := debugOptions()
	opts.Resident = true
	opts.ProjectRoot = t.TempDir() // The resident live-reload session watches this tree.

	result, err := f.launcher(false).Launch(ctx, opts)
	require.Error(t, err)

	var sessionExit *launcher.SessionExitError
	require.ErrorAs(t, err, &sessionExit)
	assert.Equal(t, int32(7), sessionExit.Code)
	assert.Equal(t, 7, launcher.ExitStatus(err))

	require.NotNil(t, result)
	assert.Equal(t, int32(7), result.ExitCode)
	assert.NotNil(t, result.StartedAt)
}

func TestLaunchMachineModeDelegates(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	f := newLaunchFixture(dev)

	opts := debugOptions()
	opts.Machine = true
	opts.Route = "/settings"
	opts.PackagesFile = ".packages"

	result, err := f.launcher(false).Launch(ctx, opts)
	require.NoError(t, err)

	require.NotNil(t, result)
	assert.Equal(t, []string{"machine"}, result.LabelParts)
	assert.NotNil(t, result.StartedAt)

	req := f.control.lastReq
	assert.Equal(t, "dev-1", req.DeviceID)
	assert.Equal(t, "lib/main.app", req.TargetFile)
	assert.Equal(t, "/settings", req.Route)
	assert.Equal(t, ".packages", req.PackagesFile)
	assert.True(t, req.LiveReloadEnabled)
	assert.True(t, req.Debugging.Enabled)

	// The orchestrator never drives the session itself on this path.
	assert.Equal(t, int32(0), f.runners.Runners["dev-1"].Starts.Load())
}

// A handoff rejection is surfaced to the user with the server's message verbatim.
func TestLaunchMachineModeStartFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	f := newLaunchFixture(dev)
	f.control.startErr = errors.New("target device is busy")

	opts := debugOptions()
	opts.Machine = true

	result, err := f.launcher(false).Launch(ctx, opts)
	require.Error(t, err)

	var launchFailed *launcher.LaunchFailedError
	require.ErrorAs(t, err, &launchFailed)
	assert.Equal(t, "target device is busy", launchFailed.Message)
	assert.Equal(t, "target device is busy", err.Error())

	assert.Nil(t, result)
	assert.Zero(t, f.reporter.count())
}

func TestLaunchMachineModePropagatesExitCode(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	dev := testutil.NewFakeDevice("dev-1", "Device One")
	f := newLaunchFixture(dev)
	f.control.session.exitCode = 3

	opts := debugOptions()
	opts.Machine = true

	result, err := f.launcher(false).Launch(ctx, opts)
	require.Error(t, err)

	var sessionExit *launcher.SessionExitError
	require.ErrorAs(t, err, &sessionExit)
	assert.Equal(t, int32(3), sessionExit.Code)
	assert.Equal(t, 3, launcher.ExitStatus(err))
	assert.Equal(t, int32(3), result.ExitCode)
}

func TestLaunchMachineModeRejectsMultipleDevices(t *testing.T) {
	t.Parallel()
	ctx, cancel := pkgtestutil.GetTestContext(t, defaultLauncherTestTimeout)
	defer cancel()

	f := newLaunchFixture(
		testutil.NewFakeDevice("dev-1", "Device One"),
		testutil.NewFakeDevice("dev-2", "Device Two"),
	)

	opts := debugOptions()
	opts.Machine = true

	result, err := f.launcher(true).Launch(ctx, opts)
	require.ErrorIs(t, err, launcher.ErrUnsupportedCombination)
	assert.Nil(t, result)
	assert.Zero(t, f.control.starts)
}

func TestExitStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, launcher.ExitStatus(nil))
	assert.Equal(t, 5, launcher.ExitStatus(&launcher.SessionExitError{Code: 5}))
	assert.Equal(t, 1, launcher.ExitStatus(&launcher.SessionExitError{Code: -1}))
	assert.Equal(t, 1, launcher.ExitStatus(errors.New("anything else")))
	assert.Equal(t, 1, launcher.ExitStatus(&launcher.LaunchFailedError{Message: "handoff failed"}))
}
