package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cams3/camnode/pkg/config"
	"github.com/cams3/camnode/pkg/motion"
	"github.com/cams3/camnode/pkg/powerinfo"
	"github.com/cams3/camnode/pkg/provisioning"
)

type statusData struct {
	state  *provisioning.Status
	motion *motion.Result
	power  *powerinfo.Status
	config *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	state, err := apiClient.GetState()
	if err != nil {
		return nil, fmt.Errorf("failed to get provisioning state: %w", err)
	}

	res, err := apiClient.GetMotion()
	if err != nil {
		return nil, fmt.Errorf("failed to get motion status: %w", err)
	}

	// Nodes without a readable power supply still report the rest.
	power, err := apiClient.GetPower()
	if err != nil {
		logrus.Debugf("no power status: %v", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		state:  state,
		motion: res,
		power:  power,
		config: conf,
	}, nil
}

func stateText(s provisioning.State) string {
	switch s {
	case provisioning.StateConnectedToHome:
		return color.New(color.Bold, color.FgGreen).Sprint(s)
	case provisioning.StateBroadcastingFallback:
		return color.New(color.Bold, color.FgYellow).Sprint(s)
	default:
		return bold("%s", s)
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of camnode",
		Long:    `Get network state, motion, power and configuration of the camera node.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			config := config.NewFileFromConfig(data.config, "")

			cmd.Println(bold("Network:"))
			cmd.Printf("  State: %s (for %.0fs)\n", stateText(data.state.State), data.state.ElapsedSeconds)
			switch data.state.State {
			case provisioning.StateBroadcastingFallback:
				cmd.Printf("    Join %s and open http://%s/ to set up the home network.\n", bold("%s", data.state.APName), config.APAddress())
			case provisioning.StateSwitchingToHome:
				cmd.Printf("    Joining %s. Setup network %s stays up meanwhile.\n", bold("%s", data.state.NetworkID), data.state.APName)
			}
			if data.state.NetworkID != "" {
				cmd.Printf("  Home network: %s\n", bold("%s", data.state.NetworkID))
			}
			if data.state.LastError != "" {
				cmd.Printf("  Last error: %s\n", color.RedString(data.state.LastError))
			}

			cmd.Println()

			cmd.Println(bold("Motion:"))
			cmd.Printf("  Motion detected: %s\n", bool2Text(data.motion.Motion))
			cmd.Printf("  Changed cells: %s\n", bold("%d/%d", data.motion.ChangedCells, motion.GridCells))
			cmd.Printf("  Frames analyzed: %s\n", bold("%d", data.motion.Frames))

			cmd.Println()

			if data.power != nil {
				cmd.Println(bold("Power:"))
				cmd.Printf("  Source: %s\n", bold("%s", data.power.Source))
				for i, b := range data.power.Batteries {
					cmd.Printf("  Battery %d: %s, %s\n", i, bold("%.1f%%", b.Percent), b.State)
					if b.ChargeRate != 0 {
						rate := color.New(color.Bold, color.FgGreen).Sprintf("%+.1f W", b.ChargeRate/1e3)
						if b.ChargeRate < 0 {
							rate = color.New(color.Bold, color.FgRed).Sprintf("%+.1f W", b.ChargeRate/1e3)
						}
						cmd.Printf("    Charge rate: %s\n", rate)
					}
				}
				cmd.Println()
			}

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Motion threshold: %s\n", bold("%d", config.MotionThreshold()))
			cmd.Printf("  Motion trigger count: %s\n", bold("%d", config.MotionTriggerCount()))
			cmd.Printf("  Check interval: %s\n", bold("%s", config.MotionCheckInterval()))
			cmd.Printf("  Camera: %s\n", bold("%s", config.CameraDevice()))
			cmd.Printf("  MQTT notifications: %s\n", bool2Text(config.MQTTBroker() != ""))
			return nil
		},
	}
}
