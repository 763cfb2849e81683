// Copyright (c) Microsoft Corporation. All rights reserved.

package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/microsoft/devrun/internal/devices"
	"github.com/microsoft/devrun/internal/session"
)

// FakeRunner is a scriptable DeviceRunner for tests. Application exit is driven
// by the test through SignalExit.
type FakeRunner struct {
	Dev devices.TargetDevice

	StartErr  error
	ReloadErr error

	Starts  atomic.Int32
	Stops   atomic.Int32
	Reloads atomic.Int32

	lock      sync.Mutex
	lastStart session.StartOptions

	exitCh chan int32
}

func NewFakeRunner(dev devices.TargetDevice) *FakeRunner {
	return &FakeRunner{
		Dev:    dev,
		exitCh: make(chan int32, 1),
	}
}

func (r *FakeRunner) Device() devices.TargetDevice {
	return r.Dev
}

func (r *FakeRunner) Start(_ context.Context, opts session.StartOptions) error {
	r.Starts.Add(1)
	r.lock.Lock()
	r.lastStart = opts
	r.lock.Unlock()
	return r.StartErr
}

func (r *FakeRunner) Reload(_ context.Context, _ bool) error {
	r.Reloads.Add(1)
	return r.ReloadErr
}

func (r *FakeRunner) Stop(_ context.Context) error {
	r.Stops.Add(1)
	return nil
}

func (r *FakeRunner) WaitExit(ctx context.Context) (int32, error) {
	select {
	case code := <-r.exitCh:
		return code, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// SignalExit makes a pending (or future) WaitExit return the given code.
func (r *FakeRunner) SignalExit(code int32) {
	r.exitCh <- code
}

func (r *FakeRunner) LastStartOptions() session.StartOptions {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.lastStart
}

// FakeRunnerFactory hands out pre-built runners keyed by device ID.
type FakeRunnerFactory struct {
	Runners map[string]*FakeRunner
}

func NewFakeRunnerFactory(runners ...*FakeRunner) *FakeRunnerFactory {
	byID := make(map[string]*FakeRunner, len(runners))
	for _, r := range runners {
		byID[r.Dev.ID()] = r
	}
	return &FakeRunnerFactory{Runners: byID}
}

func (f *FakeRunnerFactory) NewRunner(devCtx session.DeviceContext) (session.DeviceRunner, error) {
	runner, found := f.Runners[devCtx.Device.ID()]
	if !found {
		return nil, fmt.Errorf("no runner configured for device '%s'", devCtx.Device.ID())
	}
	return runner, nil
}

var _ session.DeviceRunner = (*FakeRunner)(nil)
var _ session.RunnerFactory = (*FakeRunnerFactory)(nil)
