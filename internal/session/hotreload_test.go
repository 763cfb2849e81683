package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/devrun/internal/build"
	"github.com/microsoft/devrun/internal/session"
	inttestutil "github.com/microsoft/devrun/internal/testutil"
	"github.com/microsoft/devrun/pkg/concurrency"
	"github.com/microsoft/devrun/pkg/testutil"
)

const defaultSessionTestTimeout = 30 * time.Second

func debugConfig(resident bool) session.Config {
	return session.Config{
		Target:    "lib/main.app",
		Debugging: build.NewDebuggingOptions(build.ProfileDebug, build.DebuggingFlags{}),
		Resident:  resident,
	}
}

func TestHotSessionNonResidentDetaches(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewHotReloadSession([]session.DeviceRunner{runner}, debugConfig(false), false, false, log)

	started := concurrency.NewOnceValue[time.Time]()
	code, err := sess.Run(ctx, started, "/landing", true)

	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
	assert.True(t, started.Fired(), "the started signal must fire once the app is running")
	assert.Equal(t, int32(1), runner.Starts.Load())
	assert.Equal(t, int32(0), runner.Stops.Load(), "detaching must leave the app running")

	opts := runner.LastStartOptions()
	assert.Equal(t, "/landing", opts.Route)
	assert.True(t, opts.ShouldBuild)
}

func TestHotSessionStartFailureStopsEarlierRunners(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	healthy := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	broken := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-1", "Device 1"))
	broken.StartErr = errors.New("no space left on device")

	sess := session.NewHotReloadSession([]session.DeviceRunner{healthy, broken}, debugConfig(true), false, false, log)

	started := concurrency.NewOnceValue[time.Time]()
	code, err := sess.Run(ctx, started, "", true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Device 1")
	assert.NotEqual(t, int32(0), code)
	assert.False(t, started.Fired(), "the started signal must not fire when startup fails")
	assert.Equal(t, int32(1), healthy.Stops.Load())
}

func TestHotSessionResidentPropagatesExitCode(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))

	config := debugConfig(true)
	config.ProjectRoot = t.TempDir()
	sess := session.NewHotReloadSession([]session.DeviceRunner{runner}, config, false, false, log)

	started := concurrency.NewOnceValue[time.Time]()

	resultCh := make(chan int32, 1)
	errCh := make(chan error, 1)
	go func() {
		code, err := sess.Run(ctx, started, "", false)
		resultCh <- code
		errCh <- err
	}()

	// The session must be running before the app can exit.
	select {
	case <-started.Done():
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to start")
	}

	runner.SignalExit(7)

	select {
	case code := <-resultCh:
		require.NoError(t, <-errCh)
		assert.Equal(t, int32(7), code)
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to finish")
	}
}

func TestHotSessionReloadsOnSourceChange(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	projectRoot := t.TempDir()
	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))

	config := debugConfig(true)
	config.ProjectRoot = projectRoot
	sess := session.NewHotReloadSession([]session.DeviceRunner{runner}, config, false, false, log)

	started := concurrency.NewOnceValue[time.Time]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.Run(ctx, started, "", false)
	}()

	select {
	case <-started.Done():
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to start")
	}

	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, "main.src"), []byte("v1"), 0o600))

	require.Eventually(t, func() bool {
		return runner.Reloads.Load() > 0
	}, 10*time.Second, 50*time.Millisecond, "a source change should trigger a reload")

	runner.SignalExit(0)
	select {
	case <-done:
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to finish")
	}
}

func TestHotSessionBenchmarkPerformsReload(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewHotReloadSession([]session.DeviceRunner{runner}, debugConfig(false), true, false, log)

	started := concurrency.NewOnceValue[time.Time]()
	code, err := sess.Run(ctx, started, "", false)

	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
	assert.Equal(t, int32(1), runner.Reloads.Load())
}

func TestHotSessionPassesCompilationTraceFlag(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewHotReloadSession([]session.DeviceRunner{runner}, debugConfig(false), false, true, log)

	started := concurrency.NewOnceValue[time.Time]()
	_, err := sess.Run(ctx, started, "", false)
	require.NoError(t, err)

	assert.True(t, runner.LastStartOptions().SaveCompilationTrace)
	assert.False(t, runner.LastStartOptions().TraceStartup)
}
