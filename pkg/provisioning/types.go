package provisioning

import (
	"time"

	"github.com/cams3/camnode/pkg/clock"
	"github.com/cams3/camnode/pkg/credential"
)

// State is the network lifecycle state of the node.
type State string

const (
	StateStartup              State = "Startup"
	StateConnectingToSaved    State = "ConnectingToSaved"
	StateConnectedToHome      State = "ConnectedToHome"
	StateBroadcastingFallback State = "BroadcastingFallback"
	StateSwitchingToHome      State = "SwitchingToHome"
)

// AllStates lists every state, in lifecycle order.
var AllStates = []State{
	StateStartup,
	StateConnectingToSaved,
	StateConnectedToHome,
	StateBroadcastingFallback,
	StateSwitchingToHome,
}

const (
	DefaultSTATimeout    = 30 * time.Second
	DefaultSwitchTimeout = 30 * time.Second
	DefaultAPPrefix      = "MyCam-"
)

// NetworkLink joins the home network. Connect only reports whether the
// request was accepted; success is observed later through IsConnected.
type NetworkLink interface {
	Connect(networkID, secret string) error
	IsConnected() bool
}

// CredentialStore persists the single saved credential.
type CredentialStore interface {
	Initialize() error
	HasCredential() bool
	Load() (credential.Credential, error)
	Save(credential.Credential) error
	Clear() error
}

// AccessPoint hosts the fallback network on a fixed private subnet.
type AccessPoint interface {
	Start(name string) error
	Stop() error
}

// CaptivePortal answers DNS queries with the node's own address. Start must
// be a no-op when the portal is already running.
type CaptivePortal interface {
	Start() error
	PumpOnce() error
	Stop() error
}

// Transition is emitted every time the state changes, including re-entry
// of the same state.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Options tune the controller. Zero values select the defaults.
type Options struct {
	STATimeout    time.Duration
	SwitchTimeout time.Duration
	// APPrefix is prepended to the hardware suffix to name the fallback AP.
	APPrefix string
	// HardwareAddr is the MAC address the fallback AP name is derived from.
	HardwareAddr string
	Clock        clock.Clock
	// OnTransition is called with the controller lock held; it must not
	// call back into the controller.
	OnTransition func(Transition)
}

// Status is a read-only view of the controller for the HTTP API.
type Status struct {
	State          State     `json:"state"`
	EnteredAt      time.Time `json:"enteredAt"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	APName         string    `json:"apName,omitempty"`
	NetworkID      string    `json:"networkId,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
}
