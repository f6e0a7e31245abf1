package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cams3/camnode/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewWiFiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wifi",
		Short:   "Manage the home network",
		GroupID: gBasic,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "connect [ssid] [password]",
			Short: "Save credentials and switch to the home network",
			Long: `Save credentials and switch to the home network.

Leave out the password for an open network. The access point stays up until
the node has joined the new network.`,
			Args: cobra.RangeArgs(1, 2),
			RunE: func(_ *cobra.Command, args []string) error {
				password := ""
				if len(args) == 2 {
					password = args[1]
				}
				ret, err := apiClient.ConnectWiFi(args[0], password)
				if err != nil {
					return fmt.Errorf("failed to connect to %s: %v", args[0], err)
				}
				logrus.Infof("daemon responded: %s", ret)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the home network and restart",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.ResetWiFi()
				if err != nil {
					return fmt.Errorf("failed to reset wifi: %v", err)
				}
				logrus.Infof("daemon responded: %s", ret)
				return nil
			},
		},
		&cobra.Command{
			Use:   "scan",
			Short: "List nearby networks",
			RunE: func(cmd *cobra.Command, _ []string) error {
				nets, err := apiClient.ScanWiFi()
				if err != nil {
					return fmt.Errorf("failed to scan: %v", err)
				}
				for _, n := range nets {
					cmd.Printf("  %-32s %s  %s\n", n.NetworkID, bold("%4d dBm", n.SignalStrength), lock(n.Encrypted))
				}
				if len(nets) == 0 {
					cmd.Println("  no networks found")
				}
				return nil
			},
		},
	)

	return cmd
}

func lock(encrypted bool) string {
	if encrypted {
		return "secured"
	}
	return "open"
}
