package provisioning

import (
	"errors"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/clock"
	"github.com/cams3/camnode/pkg/credential"
)

// Controller owns the provisioning state machine. All methods are safe for
// concurrent use. Begin, Tick, SaveAndConnect and Reset are serialized by a
// single lock so the state has one writer at a time. State and Status read
// a copy refreshed on every change and never wait for the access point or
// the link.
type Controller struct {
	mu sync.Mutex

	viewMu sync.RWMutex
	view   view

	state     State
	enteredAt time.Time
	networkID string
	apName    string
	lastErr   string

	link   NetworkLink
	store  CredentialStore
	ap     AccessPoint
	portal CaptivePortal
	opts   Options
}

// New returns a controller in the Startup state.
func New(link NetworkLink, store CredentialStore, ap AccessPoint, portal CaptivePortal, opts Options) *Controller {
	if opts.STATimeout <= 0 {
		opts.STATimeout = DefaultSTATimeout
	}
	if opts.SwitchTimeout <= 0 {
		opts.SwitchTimeout = DefaultSwitchTimeout
	}
	if opts.APPrefix == "" {
		opts.APPrefix = DefaultAPPrefix
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	c := &Controller{
		state:     StateStartup,
		enteredAt: opts.Clock.Now(),
		link:      link,
		store:     store,
		ap:        ap,
		portal:    portal,
		opts:      opts,
	}
	c.publish()
	return c
}

// view is the part of the controller State and Status report.
type view struct {
	state     State
	enteredAt time.Time
	networkID string
	apName    string
	lastErr   string
}

// publish refreshes the view. c.mu must be held.
func (c *Controller) publish() {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.view = view{
		state:     c.state,
		enteredAt: c.enteredAt,
		networkID: c.networkID,
		apName:    c.apName,
		lastErr:   c.lastErr,
	}
}

// Begin leaves Startup: it connects to the saved network when a usable
// credential exists and otherwise broadcasts the fallback network. Storage
// failures degrade to the fallback network; only a second call fails.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	if c.state != StateStartup {
		return ErrAlreadyStarted
	}

	log := logrus.WithField("operation", "provisioning")
	log.Info("provisioning starting")

	if err := c.store.Initialize(); err != nil {
		log.WithError(err).Error("credential storage init failed, broadcasting fallback network")
		c.lastErr = pkgerrors.Wrap(ErrStorageUnavailable, err.Error()).Error()
		c.enterFallback(ErrStorageUnavailable.Error())
		return nil
	}

	if !c.store.HasCredential() {
		log.Info("no saved credential, broadcasting fallback network")
		c.enterFallback(ErrCredentialMissing.Error())
		return nil
	}

	cred, err := c.store.Load()
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			log.WithError(err).Error("failed to load saved credential")
			c.lastErr = err.Error()
		}
		c.enterFallback(ErrCredentialMissing.Error())
		return nil
	}

	if !cred.Usable() {
		log.WithField("credential", cred.String()).Warn("saved credential is not usable, broadcasting fallback network")
		c.enterFallback(ErrCredentialMissing.Error())
		return nil
	}

	log.WithField("ssid", cred.NetworkID).Info("found saved credential, connecting")
	if err := c.link.Connect(cred.NetworkID, cred.Secret); err != nil {
		log.WithError(err).Warn("connect request rejected, broadcasting fallback network")
		c.lastErr = err.Error()
		c.enterFallback("connect request rejected")
		return nil
	}

	c.networkID = cred.NetworkID
	c.transition(StateConnectingToSaved, "saved credential found")
	return nil
}

// Tick advances the state machine. It is called periodically by the daemon.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	switch c.state {
	case StateConnectingToSaved:
		if c.link.IsConnected() {
			c.lastErr = ""
			c.transition(StateConnectedToHome, "connected to saved network")
			return
		}
		if c.elapsed() > c.opts.STATimeout {
			logrus.WithFields(logrus.Fields{
				"ssid":    c.networkID,
				"timeout": c.opts.STATimeout,
			}).Warn("connection to saved network timed out, broadcasting fallback network")
			c.lastErr = ErrConnectionTimeout.Error()
			c.enterFallback(ErrConnectionTimeout.Error())
		}

	case StateBroadcastingFallback:
		c.pumpPortal()

	case StateSwitchingToHome:
		c.pumpPortal()
		if c.link.IsConnected() {
			c.releaseFallback()
			c.lastErr = ""
			c.transition(StateConnectedToHome, "switched to home network")
			return
		}
		if c.elapsed() > c.opts.SwitchTimeout {
			logrus.WithFields(logrus.Fields{
				"ssid":    c.networkID,
				"timeout": c.opts.SwitchTimeout,
			}).Error("switching to home network timed out, staying on fallback network")
			c.lastErr = ErrConnectionTimeout.Error()
			c.enterFallback(ErrConnectionTimeout.Error())
		}

	default:
		// Startup waits for Begin; ConnectedToHome leaves reconnection to
		// the link.
	}
}

// SaveAndConnect persists a new credential and switches to it. It may be
// called in any state; the latest call wins. Called before Begin, it
// initializes the store itself. A storage failure is returned and leaves
// the state unchanged.
func (c *Controller) SaveAndConnect(networkID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	log := logrus.WithFields(logrus.Fields{
		"operation": "provisioning",
		"ssid":      networkID,
		"state":     c.state,
	})

	cred, err := credential.New(networkID, secret, c.opts.Clock.Now())
	if err != nil {
		return pkgerrors.Wrap(ErrInvalidCredential, err.Error())
	}

	if c.state == StateStartup {
		if err := c.store.Initialize(); err != nil {
			log.WithError(err).Error("credential storage init failed")
			return pkgerrors.Wrap(ErrStorageUnavailable, err.Error())
		}
	}

	log.Info("saving credential")
	if err := c.store.Save(cred); err != nil {
		log.WithError(err).Error("failed to save credential")
		return pkgerrors.Wrap(ErrStorageWriteFailed, err.Error())
	}

	log.Info("credential saved, switching to home network")
	if err := c.link.Connect(cred.NetworkID, cred.Secret); err != nil {
		// The switch timeout brings the node back to the fallback network.
		log.WithError(err).Warn("connect request rejected")
		c.lastErr = err.Error()
	}

	c.networkID = cred.NetworkID
	c.transition(StateSwitchingToHome, "credential submitted")
	return nil
}

// Reset clears the saved credential. On success the caller must restart
// the process; the controller is not meant to be used afterwards.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logrus.WithField("state", c.state).Info("resetting credential")
	if err := c.store.Clear(); err != nil {
		logrus.WithError(err).Error("failed to clear credential")
		return pkgerrors.Wrap(ErrStorageWriteFailed, err.Error())
	}

	logrus.Info("credential cleared, restart required")
	return nil
}

func (c *Controller) State() State {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view.state
}

func (c *Controller) Status() Status {
	c.viewMu.RLock()
	v := c.view
	c.viewMu.RUnlock()

	st := Status{
		State:          v.state,
		EnteredAt:      v.enteredAt,
		ElapsedSeconds: c.opts.Clock.Now().Sub(v.enteredAt).Seconds(),
		LastError:      v.lastErr,
	}
	switch v.state {
	case StateBroadcastingFallback, StateSwitchingToHome:
		st.APName = v.apName
	}
	switch v.state {
	case StateConnectingToSaved, StateConnectedToHome, StateSwitchingToHome:
		st.NetworkID = v.networkID
	}
	return st
}

// FallbackName derives the fallback network name from a hardware address:
// separators are stripped, the last six hex digits are kept and uppercased.
func FallbackName(prefix, hardwareAddr string) string {
	var b strings.Builder
	for _, r := range hardwareAddr {
		switch r {
		case ':', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	suffix := strings.ToUpper(b.String())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return prefix + suffix
}

func (c *Controller) elapsed() time.Duration {
	return c.opts.Clock.Now().Sub(c.enteredAt)
}

func (c *Controller) transition(to State, reason string) {
	t := Transition{
		From:   c.state,
		To:     to,
		Reason: reason,
		At:     c.opts.Clock.Now(),
	}

	c.state = to
	c.enteredAt = t.At
	c.publish()

	logrus.WithFields(logrus.Fields{
		"from":   t.From,
		"to":     t.To,
		"reason": reason,
	}).Info("provisioning state changed")

	if c.opts.OnTransition != nil {
		c.opts.OnTransition(t)
	}
}

// enterFallback (re-)enters BroadcastingFallback. Starting the access point
// and the portal is idempotent, so re-entry from SwitchingToHome keeps the
// running network and only resets the timer. The state is visible to
// readers before the access point calls, which can take up to their
// command timeout.
func (c *Controller) enterFallback(reason string) {
	c.apName = FallbackName(c.opts.APPrefix, c.opts.HardwareAddr)
	c.transition(StateBroadcastingFallback, reason)

	if err := c.ap.Start(c.apName); err != nil {
		logrus.WithError(err).WithField("ap", c.apName).Error("failed to start fallback access point")
		c.lastErr = err.Error()
	}
	if err := c.portal.Start(); err != nil {
		logrus.WithError(err).Error("failed to start captive portal")
		c.lastErr = err.Error()
	}

	logrus.WithField("ap", c.apName).Info("fallback network started")
}

func (c *Controller) releaseFallback() {
	if err := c.portal.Stop(); err != nil {
		logrus.WithError(err).Warn("failed to stop captive portal")
	}
	if err := c.ap.Stop(); err != nil {
		logrus.WithError(err).Warn("failed to stop fallback access point")
	}
}

func (c *Controller) pumpPortal() {
	if err := c.portal.PumpOnce(); err != nil {
		logrus.WithError(err).Debug("captive portal pump failed")
	}
}
