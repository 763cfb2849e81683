// Copyright (c) Microsoft Corporation. All rights reserved.

package launcher

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/internal/devices"
)

// validateDevices gates the launch on the resolved device set. Checks run
// eagerly, in a fixed order, and the first applicable failure aborts the
// invocation; the validator mutates nothing.
func validateDevices(facts []devices.Facts, opts *Options, requestedAllDevices, liveReload bool, log logr.Logger) error {
	if len(facts) == 0 {
		return ErrNoDevicesFound
	}

	// Launching a single pre-built binary on every attached device at once is
	// not a meaningful request. The check keys off the explicit all-devices
	// flag, not off how many devices resolution happened to return.
	if requestedAllDevices && opts.AppBinary != "" {
		return fmt.Errorf("%w: a pre-built application binary cannot be launched on all devices", ErrUnsupportedCombination)
	}

	for _, f := range facts {
		if !f.IsLocalEmulator {
			continue
		}

		// Advisory only: let the user know which renderer the emulator session will use.
		if f.SupportsHardwareRendering && !opts.Debugging.SoftwareRendering {
			log.Info("emulator will use hardware rendering", "device", f.Device.Name())
		} else {
			log.Info("emulator will use software rendering", "device", f.Device.Name())
		}

		if !opts.Profile.SupportedOnEmulator() {
			return fmt.Errorf("%w: cannot launch a %s build on emulator '%s'",
				ErrModeNotSupportedOnEmulator, opts.Profile, f.Device.Name())
		}
	}

	if liveReload {
		for _, f := range facts {
			if !f.Device.SupportsLiveReload() {
				return fmt.Errorf("%w: '%s'", ErrReloadUnsupported, f.Device.Name())
			}
		}
	}

	if opts.SaveCompilationTrace && !opts.Profile.SupportsCompilationTrace() {
		return fmt.Errorf("%w: compilation traces can only be saved from debug or instrumented builds, not %s",
			ErrInvalidFlagCombination, opts.Profile)
	}

	return nil
}
