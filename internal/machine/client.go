// Copyright (c) Microsoft Corporation. All rights reserved.

// Package machine implements the client side of the control protocol used for
// machine-mode launches: session startup is handed off to an external control
// server (typically an IDE) over a local HTTP endpoint, and session lifecycle
// notifications arrive over a websocket.
package machine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/microsoft/devrun/internal/launcher"
	"github.com/microsoft/devrun/pkg/concurrency"
	"github.com/microsoft/devrun/pkg/resiliency"
	"github.com/microsoft/devrun/pkg/syncmap"
)

const notifySocketHandshakeTimeout = 5 * time.Second

// sessionOutcome is what a completed (or lost) delegated session resolves to.
type sessionOutcome struct {
	exitCode int32
	err      error
}

type sessionState struct {
	completed *concurrency.OnceValue[sessionOutcome]
}

func newSessionState() *sessionState {
	return &sessionState{
		completed: concurrency.NewOnceValue[sessionOutcome](),
	}
}

// ControlClient talks to the external control server. One client serves the
// whole invocation; session state is keyed by the server-assigned session ID.
type ControlClient struct {
	endpointPort string
	token        string

	httpClient *http.Client

	notifySocket *websocket.Conn

	// Sessions are registered when the creation request returns, but a
	// notification may arrive first, so lookups use LoadOrStoreNew.
	sessions syncmap.Map[string, *sessionState]

	log logr.Logger
}

// NewControlClient builds a client from the connection details the control
// server placed in the environment. Both variables are required; a missing one
// means machine mode was requested without a server to hand off to.
func NewControlClient(log logr.Logger) (*ControlClient, error) {
	const missingRequiredEnvVar = "sessions cannot be delegated to a control server: missing required environment variable '%s'"

	port, found := os.LookupEnv(controlEndpointPortVar)
	if !found {
		return nil, fmt.Errorf(missingRequiredEnvVar, controlEndpointPortVar)
	}
	port = strings.TrimSpace(port)
	port = strings.TrimPrefix(port, "localhost:") // Some servers hand out "localhost:<port>".

	token, found := os.LookupEnv(controlEndpointTokenVar)
	if !found {
		return nil, fmt.Errorf(missingRequiredEnvVar, controlEndpointTokenVar)
	}
	token = strings.TrimSpace(token)

	return &ControlClient{
		endpointPort: port,
		token:        token,
		httpClient:   &http.Client{},
		log:          log.WithName("control-client"),
	}, nil
}

// StartApplication asks the control server to create a run session and returns
// a handle tracking it. A non-2xx response body is surfaced verbatim as the
// error message; it is the server's explanation of the refusal.
func (c *ControlClient) StartApplication(ctx context.Context, req launcher.ControlStartRequest) (launcher.ControlSession, error) {
	if err := c.ensureNotificationSocket(ctx); err != nil {
		return nil, err
	}

	body := runSessionRequest{
		DeviceID:         req.DeviceID,
		DeviceName:       req.DeviceName,
		WorkingDirectory: req.WorkingDir,
		TargetFile:       req.TargetFile,
		Route:            req.Route,
		Mode:             req.Debugging.Profile.String(),
		DebuggingEnabled: req.Debugging.Enabled,
		StartPaused:      req.Debugging.StartPaused,
		LiveReload:       req.LiveReloadEnabled,
		PackagesFile:     req.PackagesFile,
		OutputArtifact:   req.OutputArtifact,
		IPv6:             req.IPv6,
	}

	rawBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request body: %w", err)
	}

	sessionURL := fmt.Sprintf("http://localhost:%s%s", c.endpointPort, runSessionResourcePath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewBuffer(rawBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	c.log.V(1).Info("sending run session request", "url", sessionURL, "device", req.DeviceID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body) // Best effort to get as much data about the error as possible.
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = resp.Status
		}
		return nil, fmt.Errorf("%s", message)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("control server did not return the created session location")
	}
	sessionID, err := lastURLPathSegment(location)
	if err != nil {
		return nil, fmt.Errorf("control server returned an invalid session location '%s': %w", location, err)
	}

	c.log.Info("run session started", "sessionID", sessionID)

	// A notification for this session may have raced ahead of the response.
	state, _ := c.sessions.LoadOrStoreNew(sessionID, newSessionState)

	return &sessionHandle{id: sessionID, state: state}, nil
}

// StopApplication asks the control server to terminate a delegated session.
func (c *ControlClient) StopApplication(ctx context.Context, sessionID string) error {
	stopURL := fmt.Sprintf("http://localhost:%s%s/%s", c.endpointPort, runSessionResourcePath, sessionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, stopURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create session stop request: %w", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("run session could not be stopped: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.log.Info("run session stopped", "sessionID", sessionID)
		return nil
	case http.StatusNoContent:
		c.log.Info("attempted to stop a run session the server no longer knows", "sessionID", sessionID)
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("run session could not be stopped: %s %s", resp.Status, respBody)
	}
}

// ensureNotificationSocket connects the notification websocket on first use.
// The server may still be binding its endpoint when the launcher starts, so
// the dial is retried with back-off.
func (c *ControlClient) ensureNotificationSocket(ctx context.Context) error {
	if c.notifySocket != nil {
		return nil
	}

	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	notifyURL := fmt.Sprintf("ws://localhost:%s%s", c.endpointPort, runSessionNotificationResourcePath)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: notifySocketHandshakeTimeout,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 1 * time.Second
	b.MaxElapsedTime = 10 * time.Second

	socket, err := resiliency.RetryGet(ctx, b, func() (*websocket.Conn, error) {
		conn, _, dialErr := dialer.DialContext(ctx, notifyURL, headers)
		return conn, dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to connect to the control server notification endpoint: %w", err)
	}

	c.notifySocket = socket
	go c.processNotifications()
	return nil
}

func (c *ControlClient) processNotifications() {
	defer c.failPendingSessions()

	for {
		msgType, msg, err := c.notifySocket.ReadMessage()
		if err != nil {
			c.log.Error(err, "failed to read from the control server notification endpoint, stopping notification processing")
			return
		}

		switch msgType {
		case websocket.CloseMessage:
			c.log.Info("control server closed the notification endpoint")
			return

		case websocket.TextMessage:
			var base sessionNotificationBase
			if err := json.Unmarshal(msg, &base); err != nil {
				c.log.Error(err, "invalid session notification received, ignoring")
				continue
			}
			if base.SessionID == "" {
				c.log.Error(fmt.Errorf("session notification carries no session ID"), "ignoring notification")
				continue
			}
			c.dispatchNotification(base, msg)

		default:
			c.log.Info("unexpected message type received from the notification endpoint, ignoring", "messageType", msgType)
		}
	}
}

func (c *ControlClient) dispatchNotification(base sessionNotificationBase, msg []byte) {
	switch base.NotificationType {
	case notificationTypeSessionStarted:
		var started sessionStartedNotification
		if err := json.Unmarshal(msg, &started); err != nil {
			c.log.Error(err, "invalid session-started notification received, ignoring")
			return
		}
		c.log.V(1).Info("delegated session started", "sessionID", started.SessionID, "pid", started.PID)

	case notificationTypeSessionTerminated:
		var terminated sessionTerminatedNotification
		if err := json.Unmarshal(msg, &terminated); err != nil {
			c.log.Error(err, "invalid session-terminated notification received, ignoring")
			return
		}
		c.handleSessionTerminated(terminated)

	case notificationTypeSessionLogs:
		var logs sessionLogNotification
		if err := json.Unmarshal(msg, &logs); err != nil {
			c.log.Error(err, "invalid session-log notification received, ignoring")
			return
		}
		c.handleSessionLogs(logs)
	}
}

func (c *ControlClient) handleSessionTerminated(terminated sessionTerminatedNotification) {
	exitCode := int32(1)
	if terminated.ExitCode != nil {
		exitCode = *terminated.ExitCode
	}
	c.log.V(1).Info("delegated session terminated", "sessionID", terminated.SessionID, "exitCode", exitCode)

	state, found := c.sessions.LoadAndDelete(terminated.SessionID)
	if !found {
		// Termination may be the first thing we hear about a session. Leave a
		// completed state behind for the start path to pick up.
		state, _ = c.sessions.LoadOrStoreNew(terminated.SessionID, newSessionState)
	}
	if !state.completed.Fired() {
		state.completed.Fire(sessionOutcome{exitCode: exitCode})
	}
}

func (c *ControlClient) handleSessionLogs(logs sessionLogNotification) {
	if logs.IsStdErr {
		c.log.Info(logs.LogMessage, "sessionID", logs.SessionID, "stream", "stderr")
	} else {
		c.log.Info(logs.LogMessage, "sessionID", logs.SessionID, "stream", "stdout")
	}
}

// failPendingSessions resolves every session still waiting when the
// notification stream is lost; without it WaitForCompletion would hang forever.
func (c *ControlClient) failPendingSessions() {
	c.sessions.Range(func(id string, state *sessionState) bool {
		if !state.completed.Fired() {
			state.completed.Fire(sessionOutcome{
				err: fmt.Errorf("lost the notification connection to the control server before session '%s' completed", id),
			})
		}
		c.sessions.Delete(id)
		return true
	})
}

// sessionHandle tracks one delegated session for the orchestrator.
type sessionHandle struct {
	id    string
	state *sessionState
}

func (h *sessionHandle) WaitForCompletion(ctx context.Context) (int32, error) {
	select {
	case <-h.state.completed.Done():
		outcome := h.state.completed.Result()
		return outcome.exitCode, outcome.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func lastURLPathSegment(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	segments := strings.Split(strings.TrimSuffix(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", fmt.Errorf("URL '%s' has no path segments", rawURL)
	}
	return last, nil
}

var _ launcher.ControlServer = (*ControlClient)(nil)
