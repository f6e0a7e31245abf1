package wifi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/clock"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultConnectTimeout    = 30 * time.Second

	// stateConnected is NetworkManager's NM_DEVICE_STATE_ACTIVATED.
	stateConnected = 100
)

var ErrEmptyNetworkID = errors.New("network id is empty")

type LinkConfig struct {
	Interface         string
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
	Clock             clock.Clock
	// APConnection is the profile of the access point. An interface
	// activated with it is not connected to the home network.
	APConnection string
	// APActive reports whether the access point currently owns the
	// interface. Automatic reconnects are skipped while it returns true,
	// since a station connect on a shared radio takes the AP down.
	APActive func() bool
}

// Link joins the home network through NetworkManager. Connect returns as
// soon as the attempt is started; the outcome is observed via IsConnected.
// Starting a new attempt abandons the previous one, whose result is
// ignored.
type Link struct {
	runner Runner
	cfg    LinkConfig

	mu            sync.Mutex
	connected     bool
	networkID     string
	secret        string
	attempt       uint64
	inflight      bool
	cancel        context.CancelFunc
	lastAttemptAt time.Time

	wg sync.WaitGroup
}

func NewLink(runner Runner, cfg LinkConfig) *Link {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.APConnection == "" {
		cfg.APConnection = DefaultAPConnection
	}
	return &Link{runner: runner, cfg: cfg}
}

func (l *Link) Connect(networkID, secret string) error {
	if networkID == "" {
		return ErrEmptyNetworkID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.networkID = networkID
	l.secret = secret
	l.connected = false
	l.startAttemptLocked()
	return nil
}

func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Update refreshes the link state and, while disconnected, retries the
// last network no more often than the reconnect interval.
func (l *Link) Update(ctx context.Context) error {
	connected, err := l.poll(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if connected != l.connected {
		logrus.WithFields(logrus.Fields{
			"interface": l.cfg.Interface,
			"connected": connected,
		}).Info("wifi link state changed")
	}
	l.connected = connected

	if connected || l.networkID == "" || l.inflight {
		return nil
	}
	if l.cfg.Clock.Now().Sub(l.lastAttemptAt) < l.cfg.ReconnectInterval {
		return nil
	}
	if l.cfg.APActive != nil && l.cfg.APActive() {
		logrus.WithField("ssid", l.networkID).Debug("access point owns the interface, not reconnecting")
		return nil
	}

	logrus.WithField("ssid", l.networkID).Info("attempting wifi reconnection")
	l.startAttemptLocked()
	return nil
}

// Close abandons any in-flight attempt and waits for it to return.
func (l *Link) Close() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Link) startAttemptLocked() {
	if l.cancel != nil {
		l.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ConnectTimeout+5*time.Second)
	l.cancel = cancel
	l.attempt++
	l.inflight = true
	l.lastAttemptAt = l.cfg.Clock.Now()

	attempt := l.attempt
	args := []string{
		"--wait", strconv.Itoa(int(l.cfg.ConnectTimeout.Seconds())),
		"device", "wifi", "connect", l.networkID,
	}
	if l.secret != "" {
		args = append(args, "password", l.secret)
	}
	if l.cfg.Interface != "" {
		args = append(args, "ifname", l.cfg.Interface)
	}
	ssid := l.networkID

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		_, err := l.runner.Run(ctx, nmcli, args...)

		l.mu.Lock()
		defer l.mu.Unlock()

		if attempt != l.attempt {
			logrus.WithField("ssid", ssid).Debug("ignoring result of a superseded connection attempt")
			return
		}
		l.inflight = false
		if err != nil {
			logrus.WithError(err).WithField("ssid", ssid).Warn("wifi connection attempt failed")
			return
		}
		l.connected = true
		logrus.WithField("ssid", ssid).Info("wifi connected")
	}()
}

func (l *Link) poll(ctx context.Context) (bool, error) {
	args := []string{"-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION", "device", "show"}
	if l.cfg.Interface != "" {
		args = append(args, l.cfg.Interface)
	}
	out, err := l.runner.Run(ctx, nmcli, args...)
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to query wifi link state")
	}
	active, connection := parseDeviceState(string(out))
	return active && connection != "" && connection != "--" && connection != l.cfg.APConnection, nil
}

// parseDeviceState reads
//
//	GENERAL.STATE:100 (connected)
//	GENERAL.CONNECTION:Home
//
// and reports whether the device is activated and with which profile.
func parseDeviceState(out string) (bool, string) {
	var active bool
	var connection string
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "GENERAL.STATE":
			code, _, _ := strings.Cut(fields[1], " ")
			n, err := strconv.Atoi(code)
			active = err == nil && n == stateConnected
		case "GENERAL.CONNECTION":
			connection = fields[1]
		}
	}
	return active, connection
}
