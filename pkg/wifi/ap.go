package wifi

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPAddress is the node's address on its fallback network. The
	// third octet is 164, not 168.
	DefaultAPAddress    = "192.164.4.1"
	DefaultAPPrefixLen  = 24
	DefaultAPConnection = "camnode-ap"
	apCommandTimeout    = 30 * time.Second

	// DefaultDNSConfigDir is where NetworkManager's shared-mode dnsmasq
	// picks up extra options.
	DefaultDNSConfigDir = "/etc/NetworkManager/dnsmasq-shared.d"
	dnsConfigFile       = "camnode.conf"
)

type APConfig struct {
	Interface      string
	Address        string
	PrefixLen      int
	ConnectionName string
	// DNSConfigDir, when set, receives a dnsmasq drop-in that turns off
	// dnsmasq's DNS server so the captive portal can own port 53 on the AP
	// address. DHCP clients are still pointed at the AP address.
	DNSConfigDir string
}

// AccessPoint hosts the open fallback network on a fixed subnet, with
// NetworkManager's shared mode handing out DHCP leases.
type AccessPoint struct {
	runner Runner
	cfg    APConfig

	mu      sync.Mutex
	running bool
	name    string
}

func NewAccessPoint(runner Runner, cfg APConfig) *AccessPoint {
	if cfg.Address == "" {
		cfg.Address = DefaultAPAddress
	}
	if cfg.PrefixLen <= 0 {
		cfg.PrefixLen = DefaultAPPrefixLen
	}
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = DefaultAPConnection
	}
	return &AccessPoint{runner: runner, cfg: cfg}
}

// Start brings the access point up as name. Starting it again with the
// same name only reactivates the profile when NetworkManager dropped it,
// which happens when a station connect takes over a shared radio.
func (a *AccessPoint) Start(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), apCommandTimeout)
	defer cancel()

	if a.running && a.name == name {
		if a.active(ctx) {
			return nil
		}
		logrus.WithField("ssid", name).Warn("access point profile is no longer active, bringing it up again")
		if _, err := a.runner.Run(ctx, nmcli, "connection", "up", a.cfg.ConnectionName); err != nil {
			return pkgerrors.Wrapf(err, "failed to reactivate access point %s", name)
		}
		return nil
	}

	if a.running {
		if err := a.teardown(ctx); err != nil {
			logrus.WithError(err).Warn("failed to stop previous access point")
		}
	}

	// A profile left over from a previous run would make "add" fail.
	_, _ = a.runner.Run(ctx, nmcli, "connection", "delete", a.cfg.ConnectionName)

	addArgs := []string{
		"connection", "add", "type", "wifi",
		"con-name", a.cfg.ConnectionName,
		"autoconnect", "no",
		"ssid", name,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"ipv4.method", "shared",
		"ipv4.addresses", fmt.Sprintf("%s/%d", a.cfg.Address, a.cfg.PrefixLen),
	}
	if a.cfg.Interface != "" {
		addArgs = append(addArgs, "ifname", a.cfg.Interface)
	}
	if _, err := a.runner.Run(ctx, nmcli, addArgs...); err != nil {
		return pkgerrors.Wrapf(err, "failed to create access point %s", name)
	}
	if err := a.writeDNSConfig(); err != nil {
		logrus.WithError(err).Warn("failed to hand port 53 to the captive portal")
	}
	if _, err := a.runner.Run(ctx, nmcli, "connection", "up", a.cfg.ConnectionName); err != nil {
		return pkgerrors.Wrapf(err, "failed to bring up access point %s", name)
	}

	a.running = true
	a.name = name

	logrus.WithFields(logrus.Fields{
		"ssid":    name,
		"address": a.cfg.Address,
	}).Info("access point started")
	return nil
}

// Stop tears the access point down. Stopping a stopped AP is a no-op.
func (a *AccessPoint) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), apCommandTimeout)
	defer cancel()

	if err := a.teardown(ctx); err != nil {
		return err
	}
	logrus.WithField("ssid", a.name).Info("access point stopped")
	return nil
}

func (a *AccessPoint) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Address is the node's address on the fallback network.
func (a *AccessPoint) Address() net.IP {
	return net.ParseIP(a.cfg.Address)
}

// active asks NetworkManager whether the AP profile is activated.
func (a *AccessPoint) active(ctx context.Context) bool {
	out, err := a.runner.Run(ctx, nmcli, "-t", "-f", "GENERAL.STATE", "connection", "show", a.cfg.ConnectionName)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) == 2 && fields[0] == "GENERAL.STATE" {
			return fields[1] == "activated"
		}
	}
	return false
}

func (a *AccessPoint) writeDNSConfig() error {
	if a.cfg.DNSConfigDir == "" {
		return nil
	}
	conf := fmt.Sprintf("# Managed by camnode.\nport=0\ndhcp-option=option:dns-server,%s\n", a.cfg.Address)
	path := filepath.Join(a.cfg.DNSConfigDir, dnsConfigFile)
	if old, err := os.ReadFile(path); err == nil && string(old) == conf {
		return nil
	}
	if err := os.MkdirAll(a.cfg.DNSConfigDir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", a.cfg.DNSConfigDir)
	}
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func (a *AccessPoint) teardown(ctx context.Context) error {
	if _, err := a.runner.Run(ctx, nmcli, "connection", "down", a.cfg.ConnectionName); err != nil {
		if a.active(ctx) {
			return pkgerrors.Wrapf(err, "failed to bring down access point %s", a.name)
		}
		logrus.WithField("ssid", a.name).Debug("access point profile was already inactive")
	}
	_, _ = a.runner.Run(ctx, nmcli, "connection", "delete", a.cfg.ConnectionName)
	a.running = false
	return nil
}
