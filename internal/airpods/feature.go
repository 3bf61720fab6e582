package airpods

import "fmt"

// Feature identifies a toggleable firmware feature. The numeric values
// are the accessory protocol feature identifiers.
type Feature uint8

const (
	FeatureConversationalAwareness Feature = 0x28
	FeatureAdaptiveVolume          Feature = 0x26
)

func (f Feature) String() string {
	switch f {
	case FeatureConversationalAwareness:
		return "conversational_awareness"
	case FeatureAdaptiveVolume:
		return "adaptive_volume"
	default:
		return fmt.Sprintf("feature(%#x)", uint8(f))
	}
}

// ParseFeature maps the textual feature names accepted over the bus
// back to identifiers.
func ParseFeature(s string) (Feature, error) {
	switch s {
	case "conversational_awareness":
		return FeatureConversationalAwareness, nil
	case "adaptive_volume":
		return FeatureAdaptiveVolume, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", s)
	}
}
