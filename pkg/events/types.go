package events

import "encoding/json"

// Event name constants
const (
	ProvisioningState = "provisioning.state"
	Motion            = "motion"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ProvisioningStateEvent is the typed payload for provisioning.state.
type ProvisioningStateEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
	Ts     int64  `json:"ts"`
}

// MotionEvent is the typed payload for motion. It is sent when motion
// starts and when it stops.
type MotionEvent struct {
	ID           string `json:"id,omitempty"`
	Motion       bool   `json:"motion"`
	ChangedCells int    `json:"changedCells"`
	Ts           int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
