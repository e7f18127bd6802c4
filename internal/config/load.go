package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Overrides carries the CLI flag layer, the last override layer, as
// resolved by cmd/treesyncd's flag parsing. Empty fields leave the
// underlying config/env/default value untouched.
type Overrides struct {
	RootDir  string
	CacheDir string
}

// Apply overlays non-empty flag overrides onto cfg. Flags take precedence
// over every other configuration source.
func (o Overrides) Apply(cfg *Config) {
	if o.RootDir != "" {
		cfg.Local.RootDir = o.RootDir
	}

	if o.CacheDir != "" {
		cfg.Local.CacheDir = o.CacheDir
	}
}

// Load reads and parses a TOML config file on top of DefaultConfig. It does
// not validate the result.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns DefaultConfig.
// This supports a zero-config first run: treesyncd can start from flags and
// env vars alone.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve runs the full four-layer precedence chain: defaults, overridden
// by the file at path (if any), overridden by env vars, overridden by CLI
// flags, then validates the result.
func Resolve(path string, flags Overrides, logger *slog.Logger) (*Config, error) {
	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return nil, err
	}

	ReadEnvOverrides().Apply(cfg)
	flags.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
