package build

// DeviceOptions are the per-device build options each launched device is wrapped with.
type DeviceOptions struct {
	// Instrument the build so that widget creation locations can be tracked.
	TrackWidgetCreation bool

	// Path where the compiled output artifact for this device is placed.
	OutputPath string

	// Filesystem root/scheme overrides passed through to the compiler.
	FilesystemRoots  []string
	FilesystemScheme string

	// Restricts the session to views whose names match the filter.
	ViewFilter string
}
