// Package config loads and validates process-level TOML configuration for
// strmgate. Unlike a per-account sync client, strmgate's tenant state
// (drives, tasks, schedules) lives in the database owned by the task
// registry and drive registry — this package only covers settings that
// exist before any drive is configured: where to bind, where to keep
// state, and the ambient limits every drive's upstream client inherits.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Data      DataConfig      `toml:"data"`
	Stub      StubConfig      `toml:"stub"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
}

// HTTPConfig controls the bind address for the (out-of-scope) HTTP surface.
// Carried here because the process needs it at startup even though route
// wiring itself lives outside the core (spec.md §1).
type HTTPConfig struct {
	BindAddr string `toml:"bind_addr"`
}

// DataConfig locates persistent state on disk.
type DataConfig struct {
	// Dir is the root directory for credential blobs and the SQLite database.
	Dir string `toml:"dir"`
	// DatabasePath overrides the default "<dir>/strmgate.db" location.
	DatabasePath string `toml:"database_path"`
}

// StubConfig controls STRM stub generation defaults.
type StubConfig struct {
	// BaseURL is used to form stub contents when a task doesn't override it
	// (spec.md §4.7 step 3). Empty means every task must set its own or fall
	// back to the placeholder scheme.
	BaseURL string `toml:"base_url"`
}

// UpstreamConfig controls the Upstream Client's rate limiting, retry and
// timeout behavior (spec.md §4.2).
type UpstreamConfig struct {
	RequestsPerSecond float64       `toml:"requests_per_second"`
	MaxInFlight       int           `toml:"max_in_flight"`
	ConnectTimeout    time.Duration `toml:"-"`
	ReadTimeout       time.Duration `toml:"-"`
	ConnectTimeoutStr string        `toml:"connect_timeout"`
	ReadTimeoutStr    string        `toml:"read_timeout"`
	MaxRetries        int           `toml:"max_retries"`
	RedirectCacheTTL  time.Duration `toml:"-"`
	RedirectCacheTTLStr string      `toml:"redirect_cache_ttl"`
}

// SchedulerConfig controls the task scheduler's tick cadence.
type SchedulerConfig struct {
	TickIntervalStr string        `toml:"tick_interval"`
	TickInterval    time.Duration `toml:"-"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
	JSON  bool   `toml:"json"`
}
