// Copyright (c) Microsoft Corporation. All rights reserved.

package build

import "fmt"

// Profile is the compilation mode the application is built and launched with.
// It determines which debugging features are meaningful for the resulting session.
type Profile string

const (
	// Fully interactive development profile: assertions, live reload, debugging services.
	ProfileDebug Profile = "debug"

	// Performance profiling build: optimized code with profiling instrumentation.
	ProfileProfile Profile = "profile"

	// Optimized build that retains JIT compilation instrumentation, so compilation
	// traces can still be collected from it.
	ProfileInstrumented Profile = "instrumented"

	// Fully optimized end-user build. No interactive debugging surface.
	ProfileRelease Profile = "release"
)

func ParseProfile(value string) (Profile, error) {
	switch Profile(value) {
	case ProfileDebug, ProfileProfile, ProfileInstrumented, ProfileRelease:
		return Profile(value), nil
	default:
		return "", fmt.Errorf("unknown build profile '%s' (expected one of: debug, profile, instrumented, release)", value)
	}
}

func (p Profile) String() string {
	return string(p)
}

// Release-like profiles carry no interactive debugging surface.
func (p Profile) IsReleaseLike() bool {
	return p == ProfileRelease
}

// Emulators run unoptimized device images and cannot host release-like builds.
func (p Profile) SupportedOnEmulator() bool {
	return !p.IsReleaseLike()
}

// Compilation traces can only be collected from builds that retain JIT instrumentation.
func (p Profile) SupportsCompilationTrace() bool {
	return p == ProfileDebug || p == ProfileInstrumented
}
