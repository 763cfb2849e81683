// Copyright (c) Microsoft Corporation. All rights reserved.

package machine

// Environment variables the control server sets for the launcher process.
const (
	// The local port the control server is listening on for session requests.
	controlEndpointPortVar = "DEVRUN_CONTROL_PORT"

	// The security token to present when connecting to the control server.
	controlEndpointTokenVar = "DEVRUN_CONTROL_TOKEN"
)

const (
	// The run session collection resource. PUT creates a session; the response
	// Location header points at the created session resource.
	runSessionResourcePath = "/run_session"

	// Websocket endpoint streaming session change notifications.
	runSessionNotificationResourcePath = "/run_session/notify"
)

// runSessionRequest is the body of the session creation request.
type runSessionRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName,omitempty"`

	WorkingDirectory string `json:"workingDirectory"`
	TargetFile       string `json:"targetFile"`
	Route            string `json:"route,omitempty"`

	// The build profile name, e.g. "debug" or "release".
	Mode string `json:"mode"`

	DebuggingEnabled bool `json:"debuggingEnabled"`
	StartPaused      bool `json:"startPaused,omitempty"`

	LiveReload bool `json:"liveReload"`

	PackagesFile   string `json:"packagesFile,omitempty"`
	OutputArtifact string `json:"outputArtifact,omitempty"`

	IPv6 bool `json:"ipv6,omitempty"`
}

const (
	notificationTypeSessionStarted    = "sessionStarted"
	notificationTypeSessionTerminated = "sessionTerminated"
	notificationTypeSessionLogs       = "sessionLogs"
)

// sessionNotificationBase carries the fields common to every notification; the
// type discriminator selects the full shape to unmarshal.
type sessionNotificationBase struct {
	NotificationType string `json:"notification_type"`
	SessionID        string `json:"session_id"`
}

type sessionStartedNotification struct {
	sessionNotificationBase
	PID int32 `json:"pid,omitempty"`
}

type sessionTerminatedNotification struct {
	sessionNotificationBase
	PID int32 `json:"pid,omitempty"`

	// Absent when the server could not determine the exit code.
	ExitCode *int32 `json:"exit_code,omitempty"`
}

type sessionLogNotification struct {
	sessionNotificationBase
	IsStdErr   bool   `json:"is_std_err"`
	LogMessage string `json:"log_message"`
}
