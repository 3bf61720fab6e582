package server

import (
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

func TestDecodeCommandSetNoiseMode(t *testing.T) {
	for _, mode := range []airpods.NoiseControlMode{
		airpods.NoiseControlOff,
		airpods.NoiseControlANC,
		airpods.NoiseControlTransparency,
		airpods.NoiseControlAdaptive,
	} {
		cmd, err := decodeCommand("set_noise_mode", map[string]dbus.Variant{
			"value": dbus.MakeVariant(mode.String()),
		})
		if err != nil {
			t.Fatalf("decode %s: %v", mode, err)
		}
		got, ok := cmd.(setNoiseModeCommand)
		if !ok || got.mode != mode {
			t.Fatalf("decoded %#v, want mode %s", cmd, mode)
		}
	}
}

func TestDecodeCommandSetFeature(t *testing.T) {
	cmd, err := decodeCommand("set_feature", map[string]dbus.Variant{
		"feature": dbus.MakeVariant("conversational_awareness"),
		"enabled": dbus.MakeVariant(true),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := cmd.(setFeatureCommand)
	if !ok || got.feature != airpods.FeatureConversationalAwareness || !got.enabled {
		t.Fatalf("decoded %#v", cmd)
	}

	cmd, err = decodeCommand("set_feature", map[string]dbus.Variant{
		"feature": dbus.MakeVariant("adaptive_volume"),
		"enabled": dbus.MakeVariant(false),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := cmd.(setFeatureCommand); got.feature != airpods.FeatureAdaptiveVolume || got.enabled {
		t.Fatalf("decoded %#v", cmd)
	}
}

func TestDecodeCommandRejections(t *testing.T) {
	cases := []struct {
		name    string
		action  string
		params  map[string]dbus.Variant
		wantErr string
	}{
		{
			name:    "unknown action",
			action:  "self_destruct",
			params:  map[string]dbus.Variant{},
			wantErr: "unknown action",
		},
		{
			name:    "missing value",
			action:  "set_noise_mode",
			params:  map[string]dbus.Variant{},
			wantErr: `missing "value"`,
		},
		{
			name:   "value of wrong type",
			action: "set_noise_mode",
			params: map[string]dbus.Variant{
				"value": dbus.MakeVariant(uint32(2)),
			},
			wantErr: "want string",
		},
		{
			name:   "unknown noise mode",
			action: "set_noise_mode",
			params: map[string]dbus.Variant{
				"value": dbus.MakeVariant("silence"),
			},
			wantErr: "unknown noise control mode",
		},
		{
			name:   "missing enabled",
			action: "set_feature",
			params: map[string]dbus.Variant{
				"feature": dbus.MakeVariant("adaptive_volume"),
			},
			wantErr: `missing "enabled"`,
		},
		{
			name:   "enabled of wrong type",
			action: "set_feature",
			params: map[string]dbus.Variant{
				"feature": dbus.MakeVariant("adaptive_volume"),
				"enabled": dbus.MakeVariant("yes"),
			},
			wantErr: "want boolean",
		},
		{
			name:   "unknown feature",
			action: "set_feature",
			params: map[string]dbus.Variant{
				"feature": dbus.MakeVariant("time_travel"),
				"enabled": dbus.MakeVariant(true),
			},
			wantErr: "unknown feature",
		},
	}

	for _, tc := range cases {
		cmd, err := decodeCommand(tc.action, tc.params)
		if err == nil {
			t.Fatalf("%s: decoded %#v, want error", tc.name, cmd)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.wantErr)
		}
	}
}
