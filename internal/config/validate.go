package config

import (
	"errors"
	"fmt"
	"net"
)

// Validation sentinel errors.
var (
	ErrInvalidBindAddr = errors.New("config: invalid http.bind_addr")
	ErrInvalidDataDir  = errors.New("config: data.dir must not be empty")
	ErrInvalidRPS      = errors.New("config: upstream.requests_per_second must be positive")
	ErrInvalidInFlight = errors.New("config: upstream.max_in_flight must be positive")
	ErrInvalidRetries  = errors.New("config: upstream.max_retries must be non-negative")
	ErrInvalidLogLevel = errors.New("config: logging.level must be one of debug|info|warn|error")
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks a Config for internally-consistent, usable values.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.HTTP.BindAddr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidBindAddr, cfg.HTTP.BindAddr, err)
	}

	if cfg.Data.Dir == "" {
		return ErrInvalidDataDir
	}

	if cfg.Upstream.RequestsPerSecond <= 0 {
		return ErrInvalidRPS
	}

	if cfg.Upstream.MaxInFlight <= 0 {
		return ErrInvalidInFlight
	}

	if cfg.Upstream.MaxRetries < 0 {
		return ErrInvalidRetries
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, cfg.Logging.Level)
	}

	return nil
}
