package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kairpods/kairpodsd/internal/batterystudy"
	"github.com/kairpods/kairpodsd/internal/config"
	"github.com/kairpods/kairpodsd/internal/daemon"
	"github.com/kairpods/kairpodsd/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "kairpodsd",
		Short:         "AirPods battery and control daemon",
		Long:          "kairpodsd watches BlueZ for paired AirPods, keeps an AAP session to each connected pair and publishes their state on the session bus.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE:          runDaemon,
	}

	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	// Pre-declare the version flag so it gets the -v shorthand.
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Usage output only helps with argument mistakes. Once the daemon is
	// starting, errors are operational and usage would be noise.
	cmd.SilenceUsage = true

	// Load before logging is redirected so a broken file falls back to
	// defaults, but report the failure through the configured logger.
	cfg, cfgErr := config.Load()

	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set up logging: %v\n", err)
	}

	log.Printf("Starting kairpodsd %s (PID %d)", version.String(), os.Getpid())
	if cfgErr != nil {
		log.Printf("Failed to load configuration, using defaults: %v", cfgErr)
	} else {
		log.Printf("Loaded configuration with %d known devices", len(cfg.KnownDevices))
	}

	study := openBatteryStudy(cfg)
	if study != nil {
		defer func() {
			if err := study.Close(); err != nil {
				log.Printf("Failed to close battery study database: %v", err)
			}
		}()
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Study: study})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start()
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		d.Shutdown()
		if err := <-errChan; err != nil {
			return fmt.Errorf("daemon error during shutdown: %w", err)
		}
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	}

	log.Println("Daemon stopped")
	return nil
}

// setupLogging mirrors the daemon's log stream to a file under the data
// directory. A failure here is not fatal; the daemon keeps logging to
// stdout.
func setupLogging() error {
	paths, err := config.EnsureDataDirs()
	if err != nil {
		return fmt.Errorf("create data directories: %w", err)
	}

	logFile, err := os.OpenFile(paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return nil
}

// openBatteryStudy opens the telemetry database when enabled. The study
// is an optional extra: if the database cannot be opened the daemon
// runs without it.
func openBatteryStudy(cfg config.Config) *batterystudy.Study {
	if !cfg.BatteryStudy.Enabled {
		return nil
	}

	study, err := batterystudy.Open(batterystudy.Options{DBPath: cfg.BatteryStudy.Path})
	if err != nil {
		log.Printf("Failed to open battery study database, continuing without it: %v", err)
		return nil
	}

	log.Printf("Battery study database at %s", study.Path())
	return study
}
