package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultBindAddr, cfg.HTTP.BindAddr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[http]
bind_addr = "127.0.0.1:9000"

[upstream]
requests_per_second = 5.0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.BindAddr)
	assert.InDelta(t, 5.0, cfg.Upstream.RequestsPerSecond, 0.001)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("bogus_key = true\n"), 0o600))

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.RequestsPerSecond = 0

	err := Validate(cfg)
	require.ErrorIs(t, err, ErrInvalidRPS)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvBindAddr, "0.0.0.0:1234")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, "0.0.0.0:1234", cfg.HTTP.BindAddr)
}
