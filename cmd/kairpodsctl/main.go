package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/version"
)

// OutputFormatter handles output in JSON or human-readable format.
type OutputFormatter struct {
	jsonMode bool
}

// newOutputFormatter creates a formatter based on the command's --json flag.
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data in the appropriate format.
func (f *OutputFormatter) Print(data any) error {
	if f.jsonMode {
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}
	switch v := data.(type) {
	case string:
		fmt.Println(v)
	default:
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	}
	return nil
}

// Success outputs a success message, with the structured payload in
// JSON mode.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Println(message)
	return nil
}

// CommandResult pairs the structured payload of a command with its
// human-readable rendering.
type CommandResult struct {
	Data          map[string]any
	HumanReadable func() error
}

// Render outputs the result: structured payload in JSON mode, the
// human-readable form otherwise.
func (f *OutputFormatter) Render(result CommandResult) error {
	if f.jsonMode {
		return f.Print(result.Data)
	}
	if result.HumanReadable != nil {
		return result.HumanReadable()
	}
	return f.Print(result.Data)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kairpodsctl",
		Short: "Control and inspect AirPods through the kairpodsd daemon",
		Long: `kairpodsctl talks to the kairpodsd daemon over the session bus.

It lists tracked devices, switches noise control modes, toggles firmware
features and streams device signals as they happen.`,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(
		newDevicesCommand(),
		newGetCommand(),
		newNoiseCommand(),
		newFeatureCommand(),
		newConnectCommand(),
		newDisconnectCommand(),
		newPassthroughCommand(),
		newAutoplayCommand(),
		newWatchCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
