package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// Overrides the per-test context timeout, in minutes. Useful when stepping
// through a test under a debugger, where the usual deadlines are far too short.
const testContextTimeoutVar = "DEVRUN_TEST_CONTEXT_TIMEOUT"

// GetTestContext returns a context bounded by the shorter of the test binary
// deadline and testTimeout. A zero testTimeout means no extra bound.
func GetTestContext(t *testing.T, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	if timeoutStr, found := os.LookupEnv(testContextTimeoutVar); found {
		minutes, err := strconv.ParseUint(timeoutStr, 10, 16)
		if err != nil {
			panic(fmt.Sprintf("%s value '%s' is invalid: %s", testContextTimeoutVar, timeoutStr, err.Error()))
		}
		return context.WithTimeout(context.Background(), time.Duration(minutes)*time.Minute)
	}

	deadline, haveDeadline := t.Deadline()
	if testTimeout != 0 {
		testDeadline := time.Now().Add(testTimeout)
		if !haveDeadline || testDeadline.Before(deadline) {
			deadline, haveDeadline = testDeadline, true
		}
	}

	if !haveDeadline {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), deadline)
}
