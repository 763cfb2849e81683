// Copyright (c) Microsoft Corporation. All rights reserved.

package testutil

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/microsoft/devrun/internal/devices"
)

// FakeDevice is a scriptable TargetDevice for tests.
// Capability queries honor the configured delay and error, and count their invocations.
type FakeDevice struct {
	DeviceID   string
	DeviceName string

	Emulator          bool
	HardwareRendering bool
	Platform          devices.PlatformKind
	LiveReload        bool

	// When set, every capability query takes this long to resolve.
	ProbeDelay time.Duration
	// When set, every capability query fails with this error.
	ProbeErr error

	EmulatorQueries  atomic.Int32
	RenderingQueries atomic.Int32
	PlatformQueries  atomic.Int32
}

func NewFakeDevice(id, name string) *FakeDevice {
	return &FakeDevice{
		DeviceID:          id,
		DeviceName:        name,
		HardwareRendering: true,
		Platform:          devices.PlatformAndroid,
		LiveReload:        true,
	}
}

func (d *FakeDevice) ID() string {
	return d.DeviceID
}

func (d *FakeDevice) Name() string {
	return d.DeviceName
}

func (d *FakeDevice) IsLocalEmulator(ctx context.Context) (bool, error) {
	d.EmulatorQueries.Add(1)
	if err := d.resolve(ctx); err != nil {
		return false, err
	}
	return d.Emulator, nil
}

func (d *FakeDevice) SupportsHardwareRendering(ctx context.Context) (bool, error) {
	d.RenderingQueries.Add(1)
	if err := d.resolve(ctx); err != nil {
		return false, err
	}
	return d.HardwareRendering, nil
}

func (d *FakeDevice) TargetPlatform(ctx context.Context) (devices.PlatformKind, error) {
	d.PlatformQueries.Add(1)
	if err := d.resolve(ctx); err != nil {
		return devices.PlatformUnknown, err
	}
	return d.Platform, nil
}

func (d *FakeDevice) SupportsLiveReload() bool {
	return d.LiveReload
}

func (d *FakeDevice) resolve(ctx context.Context) error {
	if d.ProbeDelay > 0 {
		select {
		case <-time.After(d.ProbeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.ProbeErr
}

var _ devices.TargetDevice = (*FakeDevice)(nil)
