package config

import (
	"os"
	"path/filepath"
)

// DataPath returns the root directory for taskpilot data.
// It uses $TASKPILOT_PATH if set, otherwise defaults to ~/.taskpilot.
func DataPath() string {
	if v := os.Getenv("TASKPILOT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskpilot")
	}
	return filepath.Join(home, ".taskpilot")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(DataPath(), ".env")
}

// MemoryPath returns the default path of the durable memory database.
func MemoryPath() string {
	return filepath.Join(DataPath(), "memory.db")
}

// HeartbeatPath returns the liveness file written by a running gateway.
func HeartbeatPath() string {
	return filepath.Join(DataPath(), "gateway.heartbeat")
}
