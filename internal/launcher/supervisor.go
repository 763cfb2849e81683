// Copyright (c) Microsoft Corporation. All rights reserved.

package launcher

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/internal/session"
	"github.com/microsoft/devrun/pkg/concurrency"
)

// superviseSession runs a constructed session to completion, tracking its
// lifecycle phases in the log. The returned timestamp is the moment the
// application reached a runnable state, or nil if it never did.
func superviseSession(
	ctx context.Context,
	sess session.Session,
	route string,
	shouldBuild bool,
	log logr.Logger,
) (exitCode int32, startedAt *time.Time, err error) {
	started := concurrency.NewOnceValue[time.Time]()

	log.V(1).Info("session starting")

	phaseCtx, cancelPhase := context.WithCancel(ctx)
	defer cancelPhase()
	go func() {
		select {
		case <-started.Done():
			log.V(1).Info("session running")
		case <-phaseCtx.Done():
		}
	}()

	exitCode, err = sess.Run(ctx, started, route, shouldBuild)

	if at, fired := started.TryResult(); fired {
		startedAt = &at
	}

	log.V(1).Info("session terminated", "exitCode", exitCode)
	return exitCode, startedAt, err
}
