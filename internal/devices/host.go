package devices

import (
	"context"
	"os"
	"runtime"
)

// HostDevice is the developer workstation itself, acting as a desktop launch target.
// All of its capabilities are known locally, so the async queries resolve immediately.
type HostDevice struct {
	name string
}

func NewHostDevice() *HostDevice {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "local host"
	}
	return &HostDevice{name: name}
}

func (d *HostDevice) ID() string {
	return "host"
}

func (d *HostDevice) Name() string {
	return d.name
}

func (d *HostDevice) IsLocalEmulator(_ context.Context) (bool, error) {
	return false, nil
}

func (d *HostDevice) SupportsHardwareRendering(_ context.Context) (bool, error) {
	return true, nil
}

func (d *HostDevice) TargetPlatform(_ context.Context) (PlatformKind, error) {
	switch runtime.GOOS {
	case "linux":
		return PlatformLinux, nil
	case "darwin":
		return PlatformMacOS, nil
	case "windows":
		return PlatformWindows, nil
	default:
		return PlatformUnknown, nil
	}
}

func (d *HostDevice) SupportsLiveReload() bool {
	return true
}

var _ TargetDevice = (*HostDevice)(nil)
