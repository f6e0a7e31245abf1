package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic = "camnode/motion"

	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	motionQoS      = 1
)

var ErrNotConnected = pkgerrors.New("mqtt not connected")

type MQTTOptions struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker   string
	Topic    string
	ClientID string
}

type MQTTStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// MQTTNotifier publishes motion events as JSON. The client reconnects on
// its own after the first successful connect.
type MQTTNotifier struct {
	opts   MQTTOptions
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTTNotifier(opts MQTTOptions) *MQTTNotifier {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	return &MQTTNotifier{opts: opts}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(n.opts.Broker))
	opts.SetClientID(n.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		n.setConnected(true)
		logrus.WithField("broker", n.opts.Broker).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.setConnected(false)
		logrus.WithError(err).WithField("broker", n.opts.Broker).Warn("mqtt connection lost, will reconnect")
	}

	n.client = mqtt.NewClient(opts)

	logrus.WithField("broker", n.opts.Broker).Info("connecting to mqtt broker")

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	token := n.client.Connect()
	if !token.WaitTimeout(timeout) {
		return pkgerrors.Errorf("timed out connecting to mqtt broker %s", n.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return pkgerrors.Wrapf(err, "failed to connect to mqtt broker %s", n.opts.Broker)
	}

	n.setConnected(true)
	return nil
}

func (n *MQTTNotifier) Publish(ev MotionEvent) error {
	if !n.isConnected() {
		n.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.countError()
		return pkgerrors.Wrap(err, "failed to marshal motion event")
	}

	token := n.client.Publish(n.opts.Topic, motionQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.countError()
		return pkgerrors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		n.countError()
		return pkgerrors.Wrap(err, "mqtt publish failed")
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"topic": n.opts.Topic,
		"id":    ev.ID,
		"size":  len(payload),
	}).Debug("motion event published")
	return nil
}

func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		logrus.Info("mqtt disconnected")
	}
	n.setConnected(false)
	return nil
}

func (n *MQTTNotifier) Stats() MQTTStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return MQTTStats{
		Connected: n.connected,
		Published: n.published,
		Errors:    n.errors,
	}
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}
