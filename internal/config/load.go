package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file on top of the defaults, rejects
// unknown keys (fail fast, per the teacher's convention), resolves the
// duration-typed fields from their string form, and validates the result.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	if err := resolveDurations(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with defaults — strmgate can start with zero config.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		cfg := DefaultConfig()
		if err := resolveDurations(cfg); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	return Load(path, logger)
}

// resolveDurations parses the *Str duration fields into their time.Duration
// counterparts. Kept as strings in TOML for human-friendly "30s"/"1h"
// input; parsed once here so the rest of the codebase uses time.Duration.
func resolveDurations(cfg *Config) error {
	var err error

	if cfg.Upstream.ConnectTimeout, err = time.ParseDuration(cfg.Upstream.ConnectTimeoutStr); err != nil {
		return fmt.Errorf("upstream.connect_timeout: %w", err)
	}

	if cfg.Upstream.ReadTimeout, err = time.ParseDuration(cfg.Upstream.ReadTimeoutStr); err != nil {
		return fmt.Errorf("upstream.read_timeout: %w", err)
	}

	if cfg.Upstream.RedirectCacheTTL, err = time.ParseDuration(cfg.Upstream.RedirectCacheTTLStr); err != nil {
		return fmt.Errorf("upstream.redirect_cache_ttl: %w", err)
	}

	if cfg.Scheduler.TickInterval, err = time.ParseDuration(cfg.Scheduler.TickIntervalStr); err != nil {
		return fmt.Errorf("scheduler.tick_interval: %w", err)
	}

	return nil
}

// ResolveConfigPath determines the config file path: CLI flag > environment
// variable > platform default.
func ResolveConfigPath(envPath, cliPath string) string {
	path := DefaultConfigPath()

	if envPath != "" {
		path = envPath
	}

	if cliPath != "" {
		path = cliPath
	}

	return path
}
