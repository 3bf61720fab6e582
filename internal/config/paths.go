package config

import (
	"os"
	"path/filepath"
)

const appDirName = "kairpods"

// Paths is the on-disk layout of the daemon: configuration under the
// user config directory, mutable state under the data directory.
type Paths struct {
	ConfigDir  string // Configuration directory (~/.config/kairpods)
	ConfigFile string // YAML configuration file path
	DataDir    string // Mutable state directory (~/.local/share/kairpods)
	LogsDir    string // Log files directory
	LogFile    string // Daemon log file path
	StudyDB    string // Battery study SQLite database path
}

// DefaultPaths returns the standard layout, honouring the XDG base
// directory overrides.
func DefaultPaths() Paths {
	configDir := filepath.Join(userConfigDir(), appDirName)
	dataDir := filepath.Join(userDataDir(), appDirName)
	logsDir := filepath.Join(dataDir, "logs")

	return Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, "config.yaml"),
		DataDir:    dataDir,
		LogsDir:    logsDir,
		LogFile:    filepath.Join(logsDir, "kairpodsd.log"),
		StudyDB:    filepath.Join(dataDir, "battery_study.db"),
	}
}

// EnsureDataDirs creates the mutable state directories if they do not
// exist and returns the resulting layout. The config directory is left
// alone; a missing configuration file is not an error.
func EnsureDataDirs() (Paths, error) {
	paths := DefaultPaths()

	dirs := []string{
		paths.DataDir,
		paths.LogsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}

	return paths, nil
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
