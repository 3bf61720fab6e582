package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the daemon configuration. A missing file yields the
// defaults; a malformed file yields the defaults plus an error so the
// caller can log a warning and keep running.
type Config struct {
	// LogFilter selects logging verbosity (debug|info|warn|error).
	LogFilter string `mapstructure:"log_filter"`

	// KnownDevices lists Bluetooth addresses to treat as earbuds even
	// when vendor detection fails.
	KnownDevices []string `mapstructure:"known_devices"`

	// AutoPlayPause enables pausing playback on ear removal.
	AutoPlayPause bool `mapstructure:"auto_play_pause"`

	BatteryStudy BatteryStudy `mapstructure:"battery_study"`

	// ReconnectDelay is the pause before reopening a dropped
	// accessory session.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// ProbeTimeout bounds the accessory session handshake.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// BatteryStudy configures long-term battery telemetry persistence.
type BatteryStudy struct {
	Enabled bool `mapstructure:"enabled"`

	// Path overrides the database location. Empty selects the default
	// under the data directory.
	Path string `mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFilter:      "info",
		AutoPlayPause:  true,
		BatteryStudy:   BatteryStudy{Enabled: true},
		ReconnectDelay: 5 * time.Second,
		ProbeTimeout:   10 * time.Second,
	}
}

// Load reads the configuration from the default location
// (~/.config/kairpods/config.yaml) with KAIRPODS_* environment
// overrides applied on top.
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the configuration from an explicit file path. An
// empty path selects the default location.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultPaths().ConfigDir)
	}

	setDefaults(v)

	v.SetEnvPrefix("KAIRPODS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a search-path miss and a missing explicit file surface as
		// different error types
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Default(), fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
		// no file, run on defaults
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = Default().ReconnectDelay
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = Default().ProbeTimeout
	}
	cfg.BatteryStudy.Path = ExpandPath(cfg.BatteryStudy.Path)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("log_filter", defaults.LogFilter)
	v.SetDefault("known_devices", []string{})
	v.SetDefault("auto_play_pause", defaults.AutoPlayPause)
	v.SetDefault("battery_study.enabled", defaults.BatteryStudy.Enabled)
	v.SetDefault("battery_study.path", "")
	v.SetDefault("reconnect_delay", defaults.ReconnectDelay)
	v.SetDefault("probe_timeout", defaults.ProbeTimeout)
}
