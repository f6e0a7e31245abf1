package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cams3/camnode/pkg/client"
	"github.com/cams3/camnode/pkg/version"
)

var (
	logLevel   = "info"
	daemonAddr = "127.0.0.1:80"
	configPath = "/etc/camnode.json"

	apiClient *client.Client
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: camnode daemon is not running")
		fmt.Fprintf(os.Stderr, "Is the daemon listening on %s? Have you installed it?\n", daemonAddr)
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camnode",
		Short: "camnode runs a wifi camera node with motion detection",
		Long: `camnode runs a wifi camera node with motion detection.

The daemon joins the saved home network, or broadcasts its own access point
with a captive setup page until it is given credentials.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(daemonAddr)

			if cmd.Name() == "daemon" {
				return nil
			}
			if daemonVersion, err := apiClient.GetVersion(); err == nil && daemonVersion != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": daemonVersion,
				}).Warn("Version mismatch between client and daemon.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (.json, .toml or .yaml)")
	globalFlags.StringVar(&daemonAddr, "addr", daemonAddr, "camnode daemon HTTP address")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewWiFiCommand(),
		NewMotionCommand(),
		NewEventsCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
