// Copyright (c) Microsoft Corporation. All rights reserved.

package build

// DebuggingFlags carries the raw debugging-related flag values, exactly as the user supplied them.
type DebuggingFlags struct {
	StartPaused            bool
	UseTestFonts           bool
	SoftwareRendering      bool
	DeterministicRendering bool
	TraceCompositor        bool
	ObservatoryPort        int
}

// DebuggingOptions is the immutable debugging configuration derived from the build
// profile and the raw flag values. It comes in two shapes: enabled (interactive
// profiles) and disabled (release-like profiles). A disabled configuration never
// carries interactive-only fields.
type DebuggingOptions struct {
	Profile Profile
	Enabled bool

	StartPaused            bool
	UseTestFonts           bool
	SoftwareRendering      bool
	DeterministicRendering bool
	TraceCompositor        bool
	ObservatoryPort        int
}

// NewDebuggingOptions derives the debugging configuration for the given profile.
// For release-like profiles the interactive flags are meaningless and are silently
// ignored, not rejected. Pure construction: no I/O, no failure path.
func NewDebuggingOptions(profile Profile, flags DebuggingFlags) DebuggingOptions {
	if profile.IsReleaseLike() {
		return DebuggingOptions{
			Profile: profile,
			Enabled: false,
		}
	}

	return DebuggingOptions{
		Profile:                profile,
		Enabled:                true,
		StartPaused:            flags.StartPaused,
		UseTestFonts:           flags.UseTestFonts,
		SoftwareRendering:      flags.SoftwareRendering,
		DeterministicRendering: flags.DeterministicRendering,
		TraceCompositor:        flags.TraceCompositor,
		ObservatoryPort:        flags.ObservatoryPort,
	}
}
