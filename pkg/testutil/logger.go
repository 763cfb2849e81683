// Copyright (c) Microsoft Corporation. All rights reserved.

package testutil

import (
	"flag"
	"testing"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/devrun/pkg/logger"
)

// NewLogForTesting builds a logger for test use: quiet by default,
// debug-level when the test binary runs verbose.
func NewLogForTesting(name string) logr.Logger {
	log := logger.New(name)

	level := zapcore.ErrorLevel
	if !flag.Parsed() {
		flag.Parse() // testing.Verbose is only meaningful once flags are parsed.
	}
	if testing.Verbose() {
		level = zapcore.DebugLevel
	}
	log.SetLevel(level)

	return log.Logger.WithValues("test", true)
}
