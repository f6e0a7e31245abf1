package wifi

import (
	"context"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NetworkInfo is one network seen by a scan. It is never persisted.
type NetworkInfo struct {
	NetworkID      string `json:"ssid"`
	SignalStrength int    `json:"rssi"` // dBm
	Encrypted      bool   `json:"encrypted"`
}

// Scan lists nearby networks, strongest first. Hidden networks are omitted
// and each network id appears once with its strongest signal.
func (l *Link) Scan(ctx context.Context) ([]NetworkInfo, error) {
	logrus.Debug("scanning wifi networks")

	args := []string{"-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list", "--rescan", "yes"}
	if l.cfg.Interface != "" {
		args = append(args, "ifname", l.cfg.Interface)
	}
	out, err := l.runner.Run(ctx, nmcli, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to scan wifi networks")
	}

	networks := parseScan(string(out))
	logrus.WithField("count", len(networks)).Debug("wifi scan finished")
	return networks, nil
}

func parseScan(out string) []NetworkInfo {
	best := map[string]NetworkInfo{}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		quality, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		security := strings.TrimSpace(fields[2])
		info := NetworkInfo{
			NetworkID:      fields[0],
			SignalStrength: qualityToDBm(quality),
			Encrypted:      security != "" && security != "--",
		}
		if prev, ok := best[info.NetworkID]; !ok || info.SignalStrength > prev.SignalStrength {
			best[info.NetworkID] = info
		}
	}

	networks := make([]NetworkInfo, 0, len(best))
	for _, n := range best {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].SignalStrength != networks[j].SignalStrength {
			return networks[i].SignalStrength > networks[j].SignalStrength
		}
		return networks[i].NetworkID < networks[j].NetworkID
	})
	return networks
}

// qualityToDBm maps NetworkManager's 0-100 signal quality to dBm, the
// inverse of its own dBm -> quality mapping.
func qualityToDBm(q int) int {
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return q/2 - 100
}
