package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

func newNoiseCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "noise <address> <off|anc|transparency|adaptive>",
		Short:         "Set the noise control mode",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          setNoiseMode,
	}
}

func newFeatureCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "feature <address> <conversational_awareness|adaptive_volume> <on|off>",
		Short:         "Toggle a firmware feature",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          setFeature,
	}
}

func newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "connect <address>",
		Short:         "Connect a device and open its accessory session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          connectDevice,
	}
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "disconnect <address>",
		Short:         "Close a device's accessory session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          disconnectDevice,
	}
}

func newPassthroughCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "passthrough <address> <hex-bytes...>",
		Short:         "Write a raw protocol frame to a device",
		Long: `Write a raw accessory protocol frame to a connected device.

The payload is hex-encoded and may be split across arguments:

  kairpodsctl passthrough AA:BB:CC:DD:EE:FF 04000400 09000d01`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          passthroughPacket,
	}
}

func newAutoplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "autoplay [on|off]",
		Short:         "Show or set automatic media play/pause",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          autoplay,
	}
}

func setNoiseMode(cmd *cobra.Command, args []string) error {
	address := args[0]
	mode, err := airpods.ParseNoiseControlMode(args[1])
	if err != nil {
		return err
	}

	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		params := map[string]dbus.Variant{
			"value": dbus.MakeVariant(mode.String()),
		}
		var ok bool
		if err := c.call(ctx, "SendCommand", &ok, address, "set_noise_mode", params); err != nil {
			return fmt.Errorf("failed to set noise control mode: %w", err)
		}
		return out.Success(fmt.Sprintf("Noise control set to %s", mode), map[string]any{
			"address": address,
			"mode":    mode.String(),
		})
	})
}

func setFeature(cmd *cobra.Command, args []string) error {
	address := args[0]
	feature, err := airpods.ParseFeature(args[1])
	if err != nil {
		return err
	}
	enabled, err := parseOnOff(args[2])
	if err != nil {
		return err
	}

	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		params := map[string]dbus.Variant{
			"feature": dbus.MakeVariant(feature.String()),
			"enabled": dbus.MakeVariant(enabled),
		}
		var ok bool
		if err := c.call(ctx, "SendCommand", &ok, address, "set_feature", params); err != nil {
			return fmt.Errorf("failed to set feature: %w", err)
		}
		return out.Success(fmt.Sprintf("Feature %s set to %s", feature, onOffLabel(enabled)), map[string]any{
			"address": address,
			"feature": feature.String(),
			"enabled": enabled,
		})
	})
}

func connectDevice(cmd *cobra.Command, args []string) error {
	address := args[0]

	// BlueZ may have to establish the baseband link first, which takes
	// well over the usual call deadline.
	return withManager(cmd, 30*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var ok bool
		if err := c.call(ctx, "ConnectDevice", &ok, address); err != nil {
			return fmt.Errorf("failed to connect %s: %w", address, err)
		}
		return out.Success(fmt.Sprintf("Connected to %s", address), map[string]any{
			"address": address,
		})
	})
}

func disconnectDevice(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withManager(cmd, 10*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var ok bool
		if err := c.call(ctx, "DisconnectDevice", &ok, address); err != nil {
			return fmt.Errorf("failed to disconnect %s: %w", address, err)
		}
		return out.Success(fmt.Sprintf("Disconnected from %s", address), map[string]any{
			"address": address,
		})
	})
}

func passthroughPacket(cmd *cobra.Command, args []string) error {
	address := args[0]
	packet := strings.Join(args[1:], "")
	raw, err := hex.DecodeString(packet)
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}

	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var ok bool
		if err := c.call(ctx, "Passthrough", &ok, address, packet); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
		return out.Success(fmt.Sprintf("Wrote %d bytes to %s", len(raw), address), map[string]any{
			"address": address,
			"packet":  packet,
		})
	})
}

func autoplay(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
			var enabled bool
			if err := c.call(ctx, "GetAutoPlayPause", &enabled); err != nil {
				return fmt.Errorf("failed to query auto play/pause: %w", err)
			}
			return out.Render(CommandResult{
				Data: map[string]any{"enabled": enabled},
				HumanReadable: func() error {
					fmt.Printf("Auto play/pause is %s\n", onOffLabel(enabled))
					return nil
				},
			})
		})
	}

	enabled, err := parseOnOff(args[0])
	if err != nil {
		return err
	}

	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var ok bool
		if err := c.call(ctx, "SetAutoPlayPause", &ok, enabled); err != nil {
			return fmt.Errorf("failed to set auto play/pause: %w", err)
		}
		return out.Success(fmt.Sprintf("Auto play/pause set to %s", onOffLabel(enabled)), map[string]any{
			"enabled": enabled,
		})
	})
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q, want on or off", s)
}

func onOffLabel(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
