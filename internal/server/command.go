package server

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

// command is one decoded SendCommand request. The variant map is
// inspected exactly once, here; past this boundary the action and its
// parameters are typed and validated.
type command interface {
	isCommand()
}

type setNoiseModeCommand struct {
	mode airpods.NoiseControlMode
}

type setFeatureCommand struct {
	feature airpods.Feature
	enabled bool
}

func (setNoiseModeCommand) isCommand() {}
func (setFeatureCommand) isCommand()   {}

func decodeCommand(action string, params map[string]dbus.Variant) (command, error) {
	switch action {
	case "set_noise_mode":
		value, err := stringParam(params, "value")
		if err != nil {
			return nil, err
		}
		mode, err := airpods.ParseNoiseControlMode(value)
		if err != nil {
			return nil, err
		}
		return setNoiseModeCommand{mode: mode}, nil

	case "set_feature":
		name, err := stringParam(params, "feature")
		if err != nil {
			return nil, err
		}
		feature, err := airpods.ParseFeature(name)
		if err != nil {
			return nil, err
		}
		enabled, err := boolParam(params, "enabled")
		if err != nil {
			return nil, err
		}
		return setFeatureCommand{feature: feature, enabled: enabled}, nil
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

func stringParam(params map[string]dbus.Variant, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing %q parameter", key)
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: want string, got %s", key, v.Signature())
	}
	return s, nil
}

func boolParam(params map[string]dbus.Variant, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("missing %q parameter", key)
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q: want boolean, got %s", key, v.Signature())
	}
	return b, nil
}
