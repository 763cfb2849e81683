package launcher

import (
	"context"

	"github.com/microsoft/devrun/internal/build"
)

// ControlServer is the external protocol server the machine-mode path hands
// session startup off to. The orchestrator never drives the session itself on
// this path; it only waits for the delegated session to report completion.
type ControlServer interface {
	StartApplication(ctx context.Context, req ControlStartRequest) (ControlSession, error)
}

// ControlSession is a handle to a session whose lifecycle is owned by the control server.
type ControlSession interface {
	// Blocks until the server reports the session finished; returns the reported exit code.
	WaitForCompletion(ctx context.Context) (int32, error)
}

// ControlStartRequest carries the same configuration surface as direct session
// construction, plus the explicit packages-file and output-artifact paths the
// server needs to reason about the build.
type ControlStartRequest struct {
	DeviceID   string
	DeviceName string

	WorkingDir string
	TargetFile string
	Route      string

	Debugging build.DebuggingOptions

	LiveReloadEnabled bool

	PackagesFile   string
	OutputArtifact string

	IPv6 bool
}
