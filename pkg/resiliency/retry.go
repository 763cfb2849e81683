// Copyright (c) Microsoft Corporation. All rights reserved.

package resiliency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Try calling factory function with the supplied back-off policy until it succeeds,
// the policy gives up, or the context is cancelled.
func RetryGet[T any](ctx context.Context, b backoff.BackOff, factory func() (T, error)) (T, error) {
	var lastAttemptErr error

	retval, err := backoff.RetryNotifyWithData(
		factory,
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastAttemptErr = err
		},
	)

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		// Inform the caller about the timeout AND the last attempt error.
		return *new(T), errors.Join(lastAttemptErr, err)
	case err != nil:
		return *new(T), err
	default:
		return retval, nil
	}
}

// Retry an action (no result) with the supplied back-off policy.
func Retry(ctx context.Context, b backoff.BackOff, action func() error) error {
	_, err := RetryGet(ctx, b, func() (struct{}, error) {
		return struct{}{}, action()
	})
	return err
}
