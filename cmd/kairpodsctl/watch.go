package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/airpods"
	"github.com/kairpods/kairpodsd/internal/server"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream device signals until interrupted",
		Long: `Stream device signals from the daemon as they happen.

Use --json to consume newline-delimited JSON for tooling and pipelines:

  kairpodsctl watch --json | jq .`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          watchSignals,
	}
}

func watchSignals(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := newManagerClient()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer c.Close()

	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(server.Path),
		dbus.WithMatchInterface(server.Interface),
	); err != nil {
		return fmt.Errorf("failed to subscribe to device signals: %w", err)
	}

	signals := make(chan *dbus.Signal, 32)
	c.conn.Signal(signals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !out.jsonMode {
		fmt.Println("Watching device signals, press Ctrl+C to stop")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			printSignal(out, sig)
		}
	}
}

func printSignal(out *OutputFormatter, sig *dbus.Signal) {
	member := sig.Name
	if idx := strings.LastIndex(member, "."); idx >= 0 {
		member = member[idx+1:]
	}
	address, _ := signalString(sig.Body, 0)
	detail, _ := signalString(sig.Body, 1)

	now := time.Now()

	if out.jsonMode {
		entry := map[string]any{
			"time":    now.Format(time.RFC3339),
			"signal":  member,
			"address": address,
		}
		switch member {
		case "BatteryUpdated":
			entry["battery"] = json.RawMessage(detail)
		case "EarDetectionChanged":
			entry["ear_detection"] = json.RawMessage(detail)
		case "NoiseControlChanged":
			entry["mode"] = detail
		case "DeviceNameChanged":
			entry["name"] = detail
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Println(string(line))
		return
	}

	fmt.Printf("%s %s %s\n", now.Format("15:04:05"), address, describeSignal(member, detail))
}

// describeSignal renders one signal for the human-readable stream.
func describeSignal(member, detail string) string {
	switch member {
	case "DeviceConnected":
		return "connected"
	case "DeviceDisconnected":
		return "disconnected"
	case "DeviceError":
		return "session error"
	case "DeviceNameChanged":
		return fmt.Sprintf("renamed to %q", detail)
	case "NoiseControlChanged":
		return "noise control " + detail
	case "BatteryUpdated":
		var battery airpods.Battery
		if err := json.Unmarshal([]byte(detail), &battery); err != nil {
			return "battery " + detail
		}
		return fmt.Sprintf("battery left %s right %s case %s",
			formatComponent(battery.Left),
			formatComponent(battery.Right),
			formatComponent(battery.Case))
	case "EarDetectionChanged":
		var ear airpods.EarDetection
		if err := json.Unmarshal([]byte(detail), &ear); err != nil {
			return "ear detection " + detail
		}
		return fmt.Sprintf("ear detection left %s right %s",
			inEarLabel(ear.LeftInEar), inEarLabel(ear.RightInEar))
	}
	if detail == "" {
		return member
	}
	return member + " " + detail
}

func signalString(body []any, idx int) (string, bool) {
	if idx >= len(body) {
		return "", false
	}
	s, ok := body[idx].(string)
	return s, ok
}
