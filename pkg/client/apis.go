package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/cams3/camnode/pkg/config"
	"github.com/cams3/camnode/pkg/events"
	"github.com/cams3/camnode/pkg/motion"
	"github.com/cams3/camnode/pkg/powerinfo"
	"github.com/cams3/camnode/pkg/provisioning"
	"github.com/cams3/camnode/pkg/wifi"
)

// decodeString unwraps a JSON string response.
func decodeString(ret string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal response %q", ret)
	}
	return s, nil
}

func getJSON[T any](c *Client, path, what string) (*T, error) {
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s", what)
	}

	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return decodeString(ret)
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	return getJSON[config.RawFileConfig](c, "/config", "config")
}

func (c *Client) GetState() (*provisioning.Status, error) {
	return getJSON[provisioning.Status](c, "/state", "provisioning state")
}

func (c *Client) GetPower() (*powerinfo.Status, error) {
	return getJSON[powerinfo.Status](c, "/power", "power status")
}

func (c *Client) GetMotion() (*motion.Result, error) {
	return getJSON[motion.Result](c, "/motion", "motion status")
}

func (c *Client) ScanWiFi() ([]wifi.NetworkInfo, error) {
	nets, err := getJSON[[]wifi.NetworkInfo](c, "/wifi/scan", "wifi networks")
	if err != nil {
		return nil, err
	}
	return *nets, nil
}

func (c *Client) ConnectWiFi(ssid, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"ssid": ssid, "password": password})
	if err != nil {
		return "", err
	}
	ret, err := c.Post("/wifi", string(payload))
	if err != nil {
		return "", err
	}
	return decodeString(ret)
}

func (c *Client) ResetWiFi() (string, error) {
	ret, err := c.Delete("/wifi")
	if err != nil {
		return "", err
	}
	return decodeString(ret)
}

func (c *Client) SetMotionThreshold(v int) (string, error) {
	ret, err := c.Put("/motion/threshold", strconv.Itoa(v))
	if err != nil {
		return "", err
	}
	return decodeString(ret)
}

func (c *Client) SetMotionTriggerCount(v int) (string, error) {
	ret, err := c.Put("/motion/trigger-count", strconv.Itoa(v))
	if err != nil {
		return "", err
	}
	return decodeString(ret)
}

// Events follows the daemon's event stream and calls fn for every event
// until ctx is done or the stream ends.
func (c *Client) Events(ctx context.Context, fn func(events.Event)) error {
	resp, err := c.do(ctx, http.MethodGet, "/events", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got %d from event stream", resp.StatusCode)
	}

	var ev events.Event
	var data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name != "" || len(data) > 0 {
				ev.Data = json.RawMessage(strings.Join(data, "\n"))
				fn(ev)
			}
			ev, data = events.Event{}, nil
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return pkgerrors.Wrap(err, "event stream interrupted")
	}
	return nil
}
