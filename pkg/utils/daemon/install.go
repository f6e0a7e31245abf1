package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	unitName = "camnode.service"

	unitTemplate = `[Unit]
Description=camnode camera node daemon
After=network-pre.target NetworkManager.service
Wants=NetworkManager.service

[Service]
Type=simple
ExecStart=/path/to/camnode daemon --config /path/to/config
Restart=on-failure
RestartSec=3

[Install]
WantedBy=multi-user.target
`
)

var (
	unitDir  = "/etc/systemd/system"
	unitPath = filepath.Join(unitDir, unitName)

	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

func renderUnit(exePath, configPath string) string {
	return strings.NewReplacer(
		"/path/to/camnode", exePath,
		"/path/to/config", configPath,
	).Replace(unitTemplate)
}

func Install(configPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}
	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the config: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)
	logrus.Infof("writing systemd unit to %s", unitDir)

	err = os.MkdirAll(unitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(renderUnit(exePath, configPath)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting camnode")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}
