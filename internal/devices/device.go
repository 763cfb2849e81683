// Copyright (c) Microsoft Corporation. All rights reserved.

package devices

import "context"

type PlatformKind string

const (
	PlatformAndroid PlatformKind = "android"
	PlatformIOS     PlatformKind = "ios"
	PlatformLinux   PlatformKind = "linux"
	PlatformMacOS   PlatformKind = "macos"
	PlatformWindows PlatformKind = "windows"
	PlatformWeb     PlatformKind = "web"
	PlatformUnknown PlatformKind = "unknown"
)

func (pk PlatformKind) String() string {
	return string(pk)
}

func (pk PlatformKind) IsDesktop() bool {
	return pk == PlatformLinux || pk == PlatformMacOS || pk == PlatformWindows
}

// TargetDevice represents one attached device an application can be launched on.
// Capability queries are asynchronous: resolving them may require talking to the
// device, so they take a context and may be issued concurrently.
// The orchestrator holds a read-only device list for the duration of one invocation.
type TargetDevice interface {
	ID() string
	Name() string

	IsLocalEmulator(ctx context.Context) (bool, error)
	SupportsHardwareRendering(ctx context.Context) (bool, error)
	TargetPlatform(ctx context.Context) (PlatformKind, error)

	SupportsLiveReload() bool
}

// Selector resolves the set of target devices for one invocation.
type Selector interface {
	// Returns the resolved device list. An empty list is a valid result;
	// deciding what to do about it is the caller's business.
	ResolveTargetDevices(ctx context.Context) ([]TargetDevice, error)

	// Reports whether the user explicitly asked for all attached devices.
	// This is not the same as resolution having returned many devices.
	HasRequestedAllDevices() bool
}
