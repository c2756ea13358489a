// Package config owns the kdex configuration directory: the TOML config
// file, derived paths (database, clones, models, history), and the
// portable YAML export/import format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// EnvConfigDir overrides the config root when set.
const EnvConfigDir = "KDEX_CONFIG_DIR"

// ConfigFileName is the TOML file inside the config dir.
const ConfigFileName = "config.toml"

// Search modes accepted by default_search_mode.
var validSearchModes = []string{"lexical", "semantic", "hybrid"}

// Config is the kdex configuration. Field order matches the written file.
type Config struct {
	MaxFileSizeMB        int      `toml:"max_file_size_mb" yaml:"max_file_size_mb"`
	BatchSize            int      `toml:"batch_size" yaml:"batch_size"`
	WatcherDebounceMs    int      `toml:"watcher_debounce_ms" yaml:"watcher_debounce_ms"`
	IgnorePatterns       []string `toml:"ignore_patterns" yaml:"ignore_patterns"`
	EnableSemanticSearch bool     `toml:"enable_semantic_search" yaml:"enable_semantic_search"`
	EmbeddingModel       string   `toml:"embedding_model" yaml:"embedding_model"`
	DefaultSearchMode    string   `toml:"default_search_mode" yaml:"default_search_mode"`
	StripMarkdownSyntax  bool     `toml:"strip_markdown_syntax" yaml:"strip_markdown_syntax"`
	IndexCodeBlocks      bool     `toml:"index_code_blocks" yaml:"index_code_blocks"`

	// dir is the resolved config root this Config was loaded from.
	dir string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxFileSizeMB:        10,
		BatchSize:            100,
		WatcherDebounceMs:    500,
		IgnorePatterns:       []string{".git", "node_modules", "target", ".obsidian/workspace*"},
		EnableSemanticSearch: false,
		EmbeddingModel:       "all-MiniLM-L6-v2",
		DefaultSearchMode:    "lexical",
		StripMarkdownSyntax:  false,
		IndexCodeBlocks:      false,
	}
}

// Dir resolves the kdex config root: $KDEX_CONFIG_DIR when set, otherwise
// <platform config dir>/kdex.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", kerrors.ConfigInvalid("cannot resolve user config directory", err)
	}
	return filepath.Join(base, "kdex"), nil
}

// Load reads the config from the resolved config dir, writing the default
// file first when none exists.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads <dir>/config.toml. A missing file is created with
// defaults so users always have a file to edit.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default()
	cfg.dir = dir

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := cfg.Save(); werr != nil {
			return nil, werr
		}
		return cfg, nil
	}
	if err != nil {
		return nil, kerrors.ConfigInvalid(fmt.Sprintf("cannot read config: %s", path), err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, kerrors.ConfigInvalid(fmt.Sprintf("cannot parse config: %s", path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to <dir>/config.toml, creating the directory.
func (c *Config) Save() error {
	if c.dir == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.dir = dir
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return kerrors.ConfigInvalid("cannot create config directory", err)
	}

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return kerrors.ConfigInvalid("cannot encode config", err)
	}
	path := filepath.Join(c.dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return kerrors.ConfigInvalid(fmt.Sprintf("cannot write config: %s", path), err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.MaxFileSizeMB <= 0 {
		return kerrors.ConfigInvalid(fmt.Sprintf("max_file_size_mb must be positive, got %d", c.MaxFileSizeMB), nil)
	}
	if c.BatchSize <= 0 {
		return kerrors.ConfigInvalid(fmt.Sprintf("batch_size must be positive, got %d", c.BatchSize), nil)
	}
	if c.WatcherDebounceMs < 0 {
		return kerrors.ConfigInvalid(fmt.Sprintf("watcher_debounce_ms must be non-negative, got %d", c.WatcherDebounceMs), nil)
	}
	if !slices.Contains(validSearchModes, c.DefaultSearchMode) {
		return kerrors.ConfigInvalid(fmt.Sprintf("default_search_mode must be one of %v, got %q", validSearchModes, c.DefaultSearchMode), nil)
	}
	if c.EmbeddingModel == "" {
		return kerrors.ConfigInvalid("embedding_model must not be empty", nil)
	}
	return nil
}

// Dir returns the config root this Config belongs to.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir pins the config root, for callers that resolved it themselves.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// DatabasePath returns the index database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.dir, "index.db")
}

// ReposDir returns the root for remote clones.
func (c *Config) ReposDir() string {
	return filepath.Join(c.dir, "repos")
}

// ModelsDir returns the embedding model cache directory.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.dir, "models")
}

// HistoryPath returns the search history file location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.dir, "history.json")
}

// MaxFileSizeBytes converts the configured cap to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Keys returns the settable key names in file order.
func Keys() []string {
	return []string{
		"max_file_size_mb",
		"batch_size",
		"watcher_debounce_ms",
		"ignore_patterns",
		"enable_semantic_search",
		"embedding_model",
		"default_search_mode",
		"strip_markdown_syntax",
		"index_code_blocks",
	}
}

// Get returns the string form of a key's value.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "max_file_size_mb":
		return strconv.Itoa(c.MaxFileSizeMB), nil
	case "batch_size":
		return strconv.Itoa(c.BatchSize), nil
	case "watcher_debounce_ms":
		return strconv.Itoa(c.WatcherDebounceMs), nil
	case "ignore_patterns":
		return strings.Join(c.IgnorePatterns, ","), nil
	case "enable_semantic_search":
		return strconv.FormatBool(c.EnableSemanticSearch), nil
	case "embedding_model":
		return c.EmbeddingModel, nil
	case "default_search_mode":
		return c.DefaultSearchMode, nil
	case "strip_markdown_syntax":
		return strconv.FormatBool(c.StripMarkdownSyntax), nil
	case "index_code_blocks":
		return strconv.FormatBool(c.IndexCodeBlocks), nil
	default:
		return "", kerrors.InvalidInput(fmt.Sprintf("unknown config key: %s", key))
	}
}

// Set parses value for a key and validates the result. Lists are
// comma-separated.
func (c *Config) Set(key, value string) error {
	switch key {
	case "max_file_size_mb":
		n, err := strconv.Atoi(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects an integer, got %q", key, value))
		}
		c.MaxFileSizeMB = n
	case "batch_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects an integer, got %q", key, value))
		}
		c.BatchSize = n
	case "watcher_debounce_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects an integer, got %q", key, value))
		}
		c.WatcherDebounceMs = n
	case "ignore_patterns":
		var patterns []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		c.IgnorePatterns = patterns
	case "enable_semantic_search":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects true or false, got %q", key, value))
		}
		c.EnableSemanticSearch = b
	case "embedding_model":
		c.EmbeddingModel = value
	case "default_search_mode":
		c.DefaultSearchMode = value
	case "strip_markdown_syntax":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects true or false, got %q", key, value))
		}
		c.StripMarkdownSyntax = b
	case "index_code_blocks":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return kerrors.InvalidInput(fmt.Sprintf("%s expects true or false, got %q", key, value))
		}
		c.IndexCodeBlocks = b
	default:
		return kerrors.InvalidInput(fmt.Sprintf("unknown config key: %s", key))
	}
	return c.Validate()
}
