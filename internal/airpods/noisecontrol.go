package airpods

import (
	"encoding/json"
	"fmt"
)

// NoiseControlMode selects the active listening mode. The numeric
// values are the wire encoding used by the accessory protocol.
type NoiseControlMode uint8

const (
	NoiseControlOff NoiseControlMode = iota + 1
	NoiseControlANC
	NoiseControlTransparency
	NoiseControlAdaptive
)

// Valid reports whether the mode is one of the four defined values.
func (m NoiseControlMode) Valid() bool {
	return m >= NoiseControlOff && m <= NoiseControlAdaptive
}

func (m NoiseControlMode) String() string {
	switch m {
	case NoiseControlOff:
		return "off"
	case NoiseControlANC:
		return "anc"
	case NoiseControlTransparency:
		return "transparency"
	case NoiseControlAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the mode by its textual name.
func (m NoiseControlMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes the textual name form.
func (m *NoiseControlMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "unknown" {
		*m = 0
		return nil
	}
	mode, err := ParseNoiseControlMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseNoiseControlMode maps the textual names accepted over the bus
// back to modes.
func ParseNoiseControlMode(s string) (NoiseControlMode, error) {
	switch s {
	case "off":
		return NoiseControlOff, nil
	case "anc":
		return NoiseControlANC, nil
	case "transparency":
		return NoiseControlTransparency, nil
	case "adaptive":
		return NoiseControlAdaptive, nil
	default:
		return 0, fmt.Errorf("unknown noise control mode %q", s)
	}
}
