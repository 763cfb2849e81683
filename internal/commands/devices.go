// Copyright (c) Microsoft Corporation. All rights reserved.

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/microsoft/devrun/internal/devices"
)

func NewDevicesCommand(log logr.Logger) (*cobra.Command, error) {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Lists attached target devices and their capabilities",
		Long:  `Lists attached target devices and their capabilities.`,
		RunE:  getDevices(log),
		Args:  cobra.NoArgs,
	}

	return devicesCmd, nil
}

type deviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Emulator bool   `json:"emulator"`

	// Desktop devices run the application as a local OS process.
	Desktop bool `json:"desktop"`

	SupportsHardwareRendering bool `json:"supportsHardwareRendering"`
	SupportsLiveReload        bool `json:"supportsLiveReload"`
}

func getDevices(log logr.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log := log.WithName("devices")

		ctx := cmd.Context()

		facts, err := devices.Probe(ctx, attachedDevices())
		if err != nil {
			log.Error(err, "could not resolve device capabilities")
			return err
		}

		infos := make([]deviceInfo, 0, len(facts))
		for _, f := range facts {
			infos = append(infos, deviceInfo{
				ID:                        f.Device.ID(),
				Name:                      f.Device.Name(),
				Platform:                  f.Platform.String(),
				Emulator:                  f.IsLocalEmulator,
				Desktop:                   f.Platform.IsDesktop(),
				SupportsHardwareRendering: f.SupportsHardwareRendering,
				SupportsLiveReload:        f.Device.SupportsLiveReload(),
			})
		}

		if serialized, err := json.Marshal(infos); err != nil {
			log.Error(err, "could not serialize device information")
			return err
		} else {
			fmt.Println(string(serialized))
		}

		return nil
	}
}
