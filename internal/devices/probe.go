// Copyright (c) Microsoft Corporation. All rights reserved.

package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/microsoft/devrun/pkg/resiliency"
)

// Facts is an immutable snapshot of one device's resolved capabilities.
type Facts struct {
	Device                    TargetDevice
	IsLocalEmulator           bool
	SupportsHardwareRendering bool
	Platform                  PlatformKind
}

// Probe resolves the capabilities of every device in the list. The queries are
// asynchronous calls against each device, so they are fanned out concurrently
// and joined before returning; validation must never assume synchronous
// availability of capability data. The returned snapshot is ordered like the input.
func Probe(ctx context.Context, devs []TargetDevice) ([]Facts, error) {
	facts := make([]Facts, len(devs))
	queryErrs := make([]error, len(devs)*3)

	wq := resiliency.NewWorkQueue(ctx, resiliency.DefaultConcurrency)
	var wg sync.WaitGroup

	enqueue := func(errSlot int, query func(ctx context.Context) error) {
		wg.Add(1)
		enqueueErr := wq.Enqueue(func(workCtx context.Context) {
			defer wg.Done()
			queryErrs[errSlot] = query(workCtx)
		})
		if enqueueErr != nil {
			queryErrs[errSlot] = enqueueErr
			wg.Done()
		}
	}

	for i, dev := range devs {
		i, dev := i, dev
		facts[i].Device = dev

		enqueue(i*3, func(ctx context.Context) error {
			isEmulator, err := dev.IsLocalEmulator(ctx)
			if err != nil {
				return fmt.Errorf("could not determine whether device '%s' is a local emulator: %w", dev.Name(), err)
			}
			facts[i].IsLocalEmulator = isEmulator
			return nil
		})

		enqueue(i*3+1, func(ctx context.Context) error {
			hwRendering, err := dev.SupportsHardwareRendering(ctx)
			if err != nil {
				return fmt.Errorf("could not determine rendering support of device '%s': %w", dev.Name(), err)
			}
			facts[i].SupportsHardwareRendering = hwRendering
			return nil
		})

		enqueue(i*3+2, func(ctx context.Context) error {
			platform, err := dev.TargetPlatform(ctx)
			if err != nil {
				return fmt.Errorf("could not determine target platform of device '%s': %w", dev.Name(), err)
			}
			facts[i].Platform = platform
			return nil
		})
	}

	wg.Wait()

	if err := errors.Join(queryErrs...); err != nil {
		return nil, err
	}
	return facts, nil
}
