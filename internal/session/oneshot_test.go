package session_test

import (
	"errors"
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

func releaseConfig(resident bool) session.Config {
	return session.Config{
		Target:    "lib/main.app",
		Debugging: build.NewDebuggingOptions(build.ProfileRelease, build.DebuggingFlags{}),
		Resident:  resident,
	}
}

func TestOneShotNonResidentDetaches(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewOneShotSession([]session.DeviceRunner{runner}, releaseConfig(false), false, log)

	started := concurrency.NewOnceValue[time.Time]()
	code, err := sess.Run(ctx, started, "", true)

	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
	assert.True(t, started.Fired())
	assert.Equal(t, int32(0), runner.Stops.Load())
}

func TestOneShotResidentFirstNonzeroExitCodeWins(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	first := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	second := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-1", "Device 1"))
	sess := session.NewOneShotSession([]session.DeviceRunner{first, second}, releaseConfig(true), false, log)

	started := concurrency.NewOnceValue[time.Time]()

	resultCh := make(chan int32, 1)
	go func() {
		code, _ := sess.Run(ctx, started, "", true)
		resultCh <- code
	}()

	select {
	case <-started.Done():
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to start")
	}

	first.SignalExit(0)
	second.SignalExit(5)

	select {
	case code := <-resultCh:
		assert.Equal(t, int32(5), code)
	case <-ctx.Done():
		require.Fail(t, "timed out waiting for the session to finish")
	}
}

func TestOneShotResidentAllZeroExitsSucceed(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewOneShotSession([]session.DeviceRunner{runner}, releaseConfig(true), false, log)

	started := concurrency.NewOnceValue[time.Time]()
	runner.SignalExit(0)

	code, err := sess.Run(ctx, started, "", true)
	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
}

func TestOneShotStartFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	runner.StartErr = errors.New("artifact missing")
	sess := session.NewOneShotSession([]session.DeviceRunner{runner}, releaseConfig(true), false, log)

	started := concurrency.NewOnceValue[time.Time]()
	code, err := sess.Run(ctx, started, "", true)

	require.Error(t, err)
	assert.NotEqual(t, int32(0), code)
	assert.False(t, started.Fired())
}

func TestOneShotPassesStartupTraceFlag(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, defaultSessionTestTimeout)
	defer cancel()
	log := testutil.NewLogForTesting(t.Name())

	runner := inttestutil.NewFakeRunner(inttestutil.NewFakeDevice("dev-0", "Device 0"))
	sess := session.NewOneShotSession([]session.DeviceRunner{runner}, releaseConfig(false), true, log)

	started := concurrency.NewOnceValue[time.Time]()
	_, err := sess.Run(ctx, started, "", true)
	require.NoError(t, err)

	assert.True(t, runner.LastStartOptions().TraceStartup)
	assert.False(t, runner.LastStartOptions().SaveCompilationTrace)
}
