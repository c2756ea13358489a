package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups kept.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"
)

// Backup creates a timestamped copy of config.toml before a destructive
// operation (reset, non-merge import). Returns the backup path, or an
// empty string when there is no config to back up.
func (c *Config) Backup() (string, error) {
	path := filepath.Join(c.dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, timestamp)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Pruning is best-effort; the backup itself succeeded.
	_ = pruneBackups(path)

	return backupPath, nil
}

func pruneBackups(configPath string) error {
	entries, err := os.ReadDir(filepath.Dir(configPath))
	if err != nil {
		return err
	}

	prefix := filepath.Base(configPath) + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(configPath), entry.Name()))
		}
	}

	if len(backups) <= MaxBackups {
		return nil
	}

	// Timestamped suffixes sort oldest first.
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-MaxBackups] {
		_ = os.Remove(old)
	}
	return nil
}
