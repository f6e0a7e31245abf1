package powerinfo

// Source is where the node draws power from.
type Source string

const (
	SourceAC      Source = "ac"
	SourceBattery Source = "battery"
)

// Battery is one battery as reported by the OS.
// Units:
// - Current, Full, Design: mWh
// - ChargeRate: mW (negative when discharging)
// - Voltage: Volts
type Battery struct {
	State      string  `json:"state"`
	Percent    float64 `json:"percent"`
	Current    float64 `json:"current"`
	Full       float64 `json:"full"`
	Design     float64 `json:"design"`
	ChargeRate float64 `json:"chargeRate"`
	Voltage    float64 `json:"voltage"`
}

// Status is a power snapshot of the node.
type Status struct {
	Source    Source    `json:"source"`
	Batteries []Battery `json:"batteries,omitempty"`
}
