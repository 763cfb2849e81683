// Copyright (c) Microsoft Corporation. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microsoft/devrun/internal/commands"
	"github.com/microsoft/devrun/internal/launcher"
	"github.com/microsoft/devrun/pkg/logger"
)

const errSetup = 2

func main() {
	log := logger.New("devrun")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := commands.NewRootCmd(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetup)
	}

	err = root.ExecuteContext(ctx)
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(launcher.ExitStatus(err))
	}
}
