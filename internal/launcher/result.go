package launcher

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/internal/devices"
)

// LaunchResult is produced exactly once per invocation and handed to the
// reporting sink for timing/analytics.
type LaunchResult struct {
	ExitCode int32

	// When the application reached a runnable state. Absent if the session
	// never got there. This timestamp wins over any other timing source, so
	// downstream duration metrics measure time-to-interactive rather than
	// time-to-process-exit.
	StartedAt *time.Time

	// Ordered label identifying the kind of launch, e.g. ["hot", "debug", "android", "emulator"].
	LabelParts []string
}

// The label token reported for control-protocol handoff launches.
const machineLabelPart = "machine"

func launchLabelParts(liveReload bool, profileName string, facts []devices.Facts) []string {
	reloadKind := "cold"
	if liveReload {
		reloadKind = "hot"
	}

	platform := "multiple"
	if len(facts) == 1 {
		platform = facts[0].Platform.String()
	}

	parts := []string{reloadKind, profileName, platform}

	if len(facts) == 1 && facts[0].IsLocalEmulator {
		parts = append(parts, "emulator")
	}

	// Null-filter: empty tokens never make it into the label.
	filtered := parts[:0]
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Reporter receives the launch result for timing/analytics.
type Reporter interface {
	Report(result *LaunchResult)
}

// logReporter writes the result to the diagnostics log. It is the default sink.
type logReporter struct {
	log logr.Logger
}

func NewLogReporter(log logr.Logger) Reporter {
	return &logReporter{log: log.WithName("report")}
}

func (r *logReporter) Report(result *LaunchResult) {
	keysAndValues := []any{
		"label", result.LabelParts,
		"exitCode", result.ExitCode,
	}
	if result.StartedAt != nil {
		keysAndValues = append(keysAndValues, "startedAt", result.StartedAt.Format(time.RFC3339Nano))
	}
	r.log.V(1).Info("launch completed", keysAndValues...)
}
