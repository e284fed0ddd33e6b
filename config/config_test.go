package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"capitao/caverna"
	"capitao/tracker"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir isolates the test from a capitao.yaml or .env in the package dir
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, caverna.BaseURL, cfg.API.BaseURL)
	assert.Equal(t, caverna.DefaultTimeout, cfg.API.Timeout)
	assert.Equal(t, TransportSSE, cfg.Stream.Transport)
	assert.Equal(t, 3*time.Second, cfg.Stream.ReconnectDelay)
	assert.Zero(t, cfg.Stream.MaxReconnects)
	assert.True(t, cfg.Submit.RequireConsent)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxMediaBytes())
	assert.Empty(t, cfg.Warnings())

	policy := cfg.ReconnectPolicy()
	assert.Equal(t, tracker.DefaultReconnectDelay, policy.Backoff(1))
	assert.Equal(t, tracker.DefaultReconnectDelay, policy.Backoff(7))
	assert.False(t, policy.Exhausted(100))
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://file.example.com
  timeout: 45s
stream:
  transport: WebSocket
  reconnect_delay: 1s
  reconnect_max_delay: 8s
  reconnect_multiplier: 2
  max_reconnects: 4
media:
  max_size_mb: 25
`), 0o644))

	t.Setenv("CAPITAO_SUBMIT_REQUIRE_CONSENT", "false")
	t.Setenv("CAPITAO_LOG_LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("api-url", "", "")
	flags.Duration("timeout", 0, "")
	require.NoError(t, flags.Parse([]string{"--api-url", "https://flag.example.com"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.API.BaseURL, "flag beats file")
	assert.Equal(t, 45*time.Second, cfg.API.Timeout, "unset flag keeps file value")
	assert.Equal(t, TransportWebSocket, cfg.Stream.Transport)
	assert.False(t, cfg.Submit.RequireConsent)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxMediaBytes())

	policy := cfg.ReconnectPolicy()
	assert.Equal(t, time.Second, policy.Backoff(1))
	assert.Equal(t, 4*time.Second, policy.Backoff(3))
	assert.Equal(t, 8*time.Second, policy.Backoff(6))
	assert.True(t, policy.Exhausted(5))

	assert.Contains(t, cfg.Warnings(), "submit.require_consent is off; questions are sent without asking")
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CAPITAO_STREAM_MAX_RECONNECTS=9\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CAPITAO_STREAM_MAX_RECONNECTS") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Stream.MaxReconnects)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdir(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }},
		{"no host", func(c *Config) { c.API.BaseURL = "https://" }},
		{"bad transport", func(c *Config) { c.Stream.Transport = "carrier-pigeon" }},
		{"negative reconnects", func(c *Config) { c.Stream.MaxReconnects = -1 }},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"negative size", func(c *Config) { c.Media.MaxSizeMB = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestWarnings(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "http://api.example.com"
	cfg.API.Timeout = 0
	cfg.Stream.ReconnectDelay = 100 * time.Millisecond
	cfg.Stream.ReconnectMultiplier = 2

	assert.Len(t, cfg.Warnings(), 4)

	cfg.API.BaseURL = "http://localhost:8787"
	assert.Len(t, cfg.Warnings(), 3)
}
