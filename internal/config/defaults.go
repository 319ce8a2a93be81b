package config

import (
	"path/filepath"
	"time"
)

// Default values. Mirrors spec.md §4.2 (2 req/s default), §4.5 (3600s TTL),
// §5 (30s connect/read timeouts), §6 (0.0.0.0:8115 bind).
const (
	DefaultBindAddr          = "0.0.0.0:8115"
	DefaultRequestsPerSecond = 2.0
	DefaultMaxInFlight       = 4
	DefaultConnectTimeout    = 30 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRedirectCacheTTL  = 3600 * time.Second
	DefaultTickInterval      = 1 * time.Second
	DefaultLogLevel          = "info"
)

// DefaultConfig returns a Config populated with every default value, so the
// process can run with no config file at all (zero-config first run).
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		HTTP: HTTPConfig{
			BindAddr: DefaultBindAddr,
		},
		Data: DataConfig{
			Dir:          dataDir,
			DatabasePath: filepath.Join(dataDir, "strmgate.db"),
		},
		Stub: StubConfig{
			BaseURL: "",
		},
		Upstream: UpstreamConfig{
			RequestsPerSecond:   DefaultRequestsPerSecond,
			MaxInFlight:         DefaultMaxInFlight,
			ConnectTimeout:      DefaultConnectTimeout,
			ReadTimeout:         DefaultReadTimeout,
			ConnectTimeoutStr:   DefaultConnectTimeout.String(),
			ReadTimeoutStr:      DefaultReadTimeout.String(),
			MaxRetries:          DefaultMaxRetries,
			RedirectCacheTTL:    DefaultRedirectCacheTTL,
			RedirectCacheTTLStr: DefaultRedirectCacheTTL.String(),
		},
		Scheduler: SchedulerConfig{
			TickIntervalStr: DefaultTickInterval.String(),
			TickInterval:    DefaultTickInterval,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			JSON:  true,
		},
	}
}
