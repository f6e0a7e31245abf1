// Package provisioning keeps the node reachable on some network.
//
// The Controller prefers the saved home network. When no usable credential
// exists, storage is unavailable or the connection attempt times out, it
// broadcasts its own fallback access point with a captive DNS portal until
// a new credential is submitted through SaveAndConnect.
//
//	Startup --Begin--> ConnectingToSaved --connected--> ConnectedToHome
//	   |                      |timeout
//	   +--------------> BroadcastingFallback <--timeout-- SwitchingToHome
//	                          |SaveAndConnect                  |connected
//	                          +------------> SwitchingToHome   +--> ConnectedToHome
//
// Timeouts are cooperative: they are checked on every Tick against the
// instant the current state was entered, read from an injected clock.
package provisioning
