// Package config loads capitao settings from defaults, an optional
// capitao.yaml, .env files, CAPITAO_* variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"capitao/caverna"
	"capitao/tracker"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: CAPITAO_API_BASE_URL, ...
const EnvPrefix = "CAPITAO"

// Transports for the processing stream
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config holds the complete application configuration
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Stream StreamConfig `mapstructure:"stream"`
	Media  MediaConfig  `mapstructure:"media"`
	Submit SubmitConfig `mapstructure:"submit"`
	Log    LogConfig    `mapstructure:"log"`
	Health HealthConfig `mapstructure:"health"`
}

// APIConfig holds the remote service settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StreamConfig controls how sessions are followed
type StreamConfig struct {
	Transport           string        `mapstructure:"transport"`
	ReconnectDelay      time.Duration `mapstructure:"reconnect_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMultiplier float64       `mapstructure:"reconnect_multiplier"`
	MaxReconnects       int           `mapstructure:"max_reconnects"`
}

// MediaConfig limits what can be submitted
type MediaConfig struct {
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	VideoDevice string `mapstructure:"video_device"`
	AudioDevice string `mapstructure:"audio_device"`
}

// SubmitConfig holds submission rules
type SubmitConfig struct {
	RequireConsent bool `mapstructure:"require_consent"`
}

// LogConfig holds logger settings
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// HealthConfig holds health probe caching
type HealthConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: caverna.BaseURL,
			Timeout: caverna.DefaultTimeout,
		},
		Stream: StreamConfig{
			Transport:           TransportSSE,
			ReconnectDelay:      tracker.DefaultReconnectDelay,
			ReconnectMultiplier: 1,
		},
		Media: MediaConfig{
			MaxSizeMB: 100,
		},
		Submit: SubmitConfig{
			RequireConsent: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Health: HealthConfig{
			CacheTTL: caverna.DefaultHealthCacheTTL,
		},
	}
}

// flagKeys maps command-line flags onto config keys
var flagKeys = map[string]string{
	"api-url":   "api.base_url",
	"timeout":   "api.timeout",
	"transport": "stream.transport",
	"log-file":  "log.file",
	"log-level": "log.level",
}

// Load reads configuration. configPath may be empty to search the default
// locations; flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("capitao")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "capitao"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Stream.Transport = strings.ToLower(strings.TrimSpace(cfg.Stream.Transport))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("stream.transport", d.Stream.Transport)
	v.SetDefault("stream.reconnect_delay", d.Stream.ReconnectDelay)
	v.SetDefault("stream.reconnect_max_delay", d.Stream.ReconnectMaxDelay)
	v.SetDefault("stream.reconnect_multiplier", d.Stream.ReconnectMultiplier)
	v.SetDefault("stream.max_reconnects", d.Stream.MaxReconnects)
	v.SetDefault("media.max_size_mb", d.Media.MaxSizeMB)
	v.SetDefault("media.video_device", d.Media.VideoDevice)
	v.SetDefault("media.audio_device", d.Media.AudioDevice)
	v.SetDefault("submit.require_consent", d.Submit.RequireConsent)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("health.cache_ttl", d.Health.CacheTTL)
}

// Validate rejects values the client cannot work with
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: must be an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("invalid stream.transport %q (must be sse or websocket)", c.Stream.Transport)
	}
	if c.Stream.MaxReconnects < 0 {
		return fmt.Errorf("stream.max_reconnects must not be negative")
	}
	if c.Media.MaxSizeMB < 0 {
		return fmt.Errorf("media.max_size_mb must not be negative")
	}
	return nil
}

// Warnings lists settings that work but are probably not intended
func (c *Config) Warnings() []string {
	var warnings []string
	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		warnings = append(warnings, "api.base_url uses plain http; uploads are sent unencrypted")
	}
	if c.API.Timeout == 0 {
		warnings = append(warnings, "api.timeout is 0; requests never time out")
	}
	if c.Stream.ReconnectDelay > 0 && c.Stream.ReconnectDelay < 500*time.Millisecond {
		warnings = append(warnings, "stream.reconnect_delay below 500ms may hammer the server")
	}
	if c.Stream.ReconnectMultiplier > 1 && c.Stream.ReconnectMaxDelay == 0 {
		warnings = append(warnings, "stream.reconnect_multiplier without stream.reconnect_max_delay grows without bound")
	}
	if !c.Submit.RequireConsent {
		warnings = append(warnings, "submit.require_consent is off; questions are sent without asking")
	}
	return warnings
}

// ReconnectPolicy builds the tracker policy from stream settings
func (c *Config) ReconnectPolicy() tracker.ReconnectPolicy {
	return tracker.ReconnectPolicy{
		Delay:       c.Stream.ReconnectDelay,
		MaxDelay:    c.Stream.ReconnectMaxDelay,
		Multiplier:  c.Stream.ReconnectMultiplier,
		MaxAttempts: c.Stream.MaxReconnects,
	}
}

// MaxMediaBytes is the upload limit in bytes; 0 means unlimited
func (c *Config) MaxMediaBytes() int64 {
	return int64(c.Media.MaxSizeMB) * 1024 * 1024
}
