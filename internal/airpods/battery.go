package airpods

import "encoding/json"

// LevelUnknown marks a battery component whose charge was not reported.
const LevelUnknown = -1

// Component is the charge state of a single battery cell.
type Component struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

// Known reports whether the component carried a usable charge level.
func (c Component) Known() bool {
	return c.Level >= 0
}

// Battery aggregates the left bud, right bud and case batteries.
type Battery struct {
	Left  Component `json:"left"`
	Right Component `json:"right"`
	Case  Component `json:"case"`
}

// UnknownBattery returns a battery with every component unreported.
func UnknownBattery() Battery {
	unknown := Component{Level: LevelUnknown}
	return Battery{Left: unknown, Right: unknown, Case: unknown}
}

// JSON renders the battery payload carried by signals and the devices
// property.
func (b Battery) JSON() string {
	buf, err := json.Marshal(b)
	if err != nil {
		return "{}"
	}
	return string(buf)
}
