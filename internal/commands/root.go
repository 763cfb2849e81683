// Copyright (c) Microsoft Corporation. All rights reserved.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/devrun/pkg/logger"
)

func NewRootCmd(log *logger.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		SilenceErrors: true,
		SilenceUsage:  true,
		Use:           "devrun",
		Short:         "Builds and runs an application on attached target devices",
		Long: `devrun builds your application and launches it on one or more attached target devices.

	In the debug profile (the default) source changes are applied to the running
	application via live reload. Other profiles perform a one-shot launch.

	By default (no command specified), this executable launches the application.
	`,
		PersistentPreRun: LogVersion(log.Logger, "devrun starting"),
		RunE:             runLaunch(log),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	addRunFlags(rootCmd.Flags())

	var err error
	var cmd *cobra.Command

	if cmd, err = NewVersionCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	if cmd, err = NewDevicesCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'devices' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	log.AddLevelFlag(rootCmd.PersistentFlags())

	return rootCmd, nil
}
