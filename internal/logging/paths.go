package logging

import (
	"os"
	"path/filepath"
)

// LogDir returns the kdex log directory. It honors KDEX_CONFIG_DIR the
// same way the config package does, falling back to the platform config
// dir and finally to the temp dir so logging never hard-fails.
func LogDir() string {
	if dir := os.Getenv("KDEX_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "logs")
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kdex", "logs")
	}
	return filepath.Join(base, "kdex", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(LogDir(), "kdex.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(LogDir(), 0o755)
}
