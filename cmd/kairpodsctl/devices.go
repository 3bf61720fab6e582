package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "devices",
		Short:         "List tracked devices and their battery state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          listDevices,
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "get <address>",
		Short:         "Show one device in detail",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          getDevice,
	}
}

func listDevices(cmd *cobra.Command, args []string) error {
	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var payload string
		if err := c.call(ctx, "GetDevices", &payload); err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		var devices []airpods.Snapshot
		if err := json.Unmarshal([]byte(payload), &devices); err != nil {
			return fmt.Errorf("failed to decode device list: %w", err)
		}

		return out.Render(CommandResult{
			Data: map[string]any{"devices": json.RawMessage(payload)},
			HumanReadable: func() error {
				if len(devices) == 0 {
					fmt.Println("No devices")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ADDRESS\tNAME\tSTATE\tLEFT\tRIGHT\tCASE\tNOISE")
				for _, dev := range devices {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						dev.Address,
						dev.Name,
						connectionState(dev.Connected),
						formatComponent(dev.Battery.Left),
						formatComponent(dev.Battery.Right),
						formatComponent(dev.Battery.Case),
						dev.NoiseMode,
					)
				}
				return w.Flush()
			},
		})
	})
}

func getDevice(cmd *cobra.Command, args []string) error {
	address := args[0]

	return withManager(cmd, 5*time.Second, func(ctx context.Context, c *managerClient, out *OutputFormatter) error {
		var payload string
		if err := c.call(ctx, "GetDevice", &payload, address); err != nil {
			return fmt.Errorf("failed to get device %s: %w", address, err)
		}

		var dev airpods.Snapshot
		if err := json.Unmarshal([]byte(payload), &dev); err != nil {
			return fmt.Errorf("failed to decode device: %w", err)
		}

		return out.Render(CommandResult{
			Data: map[string]any{"device": json.RawMessage(payload)},
			HumanReadable: func() error {
				printDevice(dev)
				return nil
			},
		})
	})
}

func printDevice(dev airpods.Snapshot) {
	fmt.Printf("%s (%s)\n", dev.Name, dev.Address)
	fmt.Printf("  state:          %s\n", connectionState(dev.Connected))
	fmt.Printf("  battery left:   %s\n", describeComponent(dev.Battery.Left))
	fmt.Printf("  battery right:  %s\n", describeComponent(dev.Battery.Right))
	fmt.Printf("  battery case:   %s\n", describeComponent(dev.Battery.Case))
	fmt.Printf("  noise control:  %s\n", dev.NoiseMode)
	fmt.Printf("  in ear:         left %s, right %s\n",
		inEarLabel(dev.EarDetection.LeftInEar), inEarLabel(dev.EarDetection.RightInEar))
	if !dev.LastSeen.IsZero() {
		fmt.Printf("  last seen:      %s\n", dev.LastSeen.Format(time.RFC3339))
	}
}

func connectionState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

// formatComponent renders one battery reading for table output. A
// trailing + marks a charging component.
func formatComponent(c airpods.Component) string {
	if c.Level < 0 {
		return "-"
	}
	if c.Charging {
		return fmt.Sprintf("%d%%+", c.Level)
	}
	return fmt.Sprintf("%d%%", c.Level)
}

func describeComponent(c airpods.Component) string {
	if c.Level < 0 {
		return "unknown"
	}
	if c.Charging {
		return fmt.Sprintf("%d%% (charging)", c.Level)
	}
	return fmt.Sprintf("%d%%", c.Level)
}

func inEarLabel(inEar bool) string {
	if inEar {
		return "in"
	}
	return "out"
}
