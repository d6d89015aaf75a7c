// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "YTADDON"

// EnvKeyReplacer maps configuration keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address (default ":3100").
	ListenAddr string `mapstructure:"listen_addr"`
	// PublicURL is the externally visible base URL used in stream and
	// configuration links. Empty means derive it from each request.
	PublicURL string `mapstructure:"public_url"`
	// DataDir holds the settings document.
	DataDir string `mapstructure:"data_dir"`

	Ytdlp   YtdlpConfig   `mapstructure:"ytdlp"`
	Streams StreamsConfig `mapstructure:"streams"`
	YouTube YouTubeConfig `mapstructure:"youtube"`
	Log     LogConfig     `mapstructure:"log"`
}

// YtdlpConfig controls how the extraction tool is invoked.
type YtdlpConfig struct {
	// Path is the yt-dlp executable (default "yt-dlp").
	Path string `mapstructure:"path"`
	// ExtraArgs are passed to every invocation, e.g. cookies or proxy flags.
	ExtraArgs []string `mapstructure:"extra_args"`
	// ResolveTimeout bounds a format resolution.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	// ProbeTimeout bounds the availability check.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// KillGrace is how long a process gets between SIGTERM and SIGKILL.
	KillGrace time.Duration `mapstructure:"kill_grace"`
	// MaxProcesses caps concurrent processes. 0 means unlimited.
	MaxProcesses int `mapstructure:"max_processes"`
}

// StreamsConfig shapes the stream list.
type StreamsConfig struct {
	// MinHeight drops direct formats below this height when taller ones exist.
	MinHeight int `mapstructure:"min_height"`
	// MaxFormats caps the direct formats offered.
	MaxFormats int `mapstructure:"max_formats"`
	// PinThroughRelay routes direct formats through the relay instead of
	// handing out the expiring upstream URL.
	PinThroughRelay bool `mapstructure:"pin_through_relay"`
}

// YouTubeConfig tunes metadata lookups.
type YouTubeConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Region            string        `mapstructure:"region"`
	Language          string        `mapstructure:"language"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":3100",
		DataDir:    "data",
		Ytdlp: YtdlpConfig{
			Path:           "yt-dlp",
			ExtraArgs:      []string{},
			ResolveTimeout: 40 * time.Second,
			ProbeTimeout:   5 * time.Second,
			KillGrace:      3 * time.Second,
		},
		Streams: StreamsConfig{
			MinHeight:  240,
			MaxFormats: 6,
		},
		YouTube: YouTubeConfig{
			RequestsPerSecond: 1,
			Timeout:           15 * time.Second,
			Region:            "IT",
			Language:          "it",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaults flattens DefaultConfig into viper keys.
func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"listen_addr":                 d.ListenAddr,
		"public_url":                  d.PublicURL,
		"data_dir":                    d.DataDir,
		"ytdlp.path":                  d.Ytdlp.Path,
		"ytdlp.extra_args":            d.Ytdlp.ExtraArgs,
		"ytdlp.resolve_timeout":       d.Ytdlp.ResolveTimeout,
		"ytdlp.probe_timeout":         d.Ytdlp.ProbeTimeout,
		"ytdlp.kill_grace":            d.Ytdlp.KillGrace,
		"ytdlp.max_processes":         d.Ytdlp.MaxProcesses,
		"streams.min_height":          d.Streams.MinHeight,
		"streams.max_formats":         d.Streams.MaxFormats,
		"streams.pin_through_relay":   d.Streams.PinThroughRelay,
		"youtube.requests_per_second": d.YouTube.RequestsPerSecond,
		"youtube.timeout":             d.YouTube.Timeout,
		"youtube.region":              d.YouTube.Region,
		"youtube.language":            d.YouTube.Language,
		"log.level":                   d.Log.Level,
		"log.format":                  d.Log.Format,
	}
}

// Keys lists every configuration key.
func Keys() []string {
	keys := make([]string, 0, len(defaults()))
	for k := range defaults() {
		keys = append(keys, k)
	}
	return keys
}

// NewViper returns a viper instance with defaults, environment bindings and
// the config search path set up. fsys may be nil for the OS filesystem.
func NewViper(fsys afero.Fs) *viper.Viper {
	v := viper.New()
	if fsys != nil {
		v.SetFs(fsys)
	}
	v.SetConfigName("ytaddon")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "ytaddon"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads the config file if there is one, applies environment
// overrides and validates the result.
// Priority: flags > env vars > config file > defaults
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyLegacyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLegacyEnv honours PORT and PUBLIC_HOST unless listen_addr and
// public_url were set some other way.
func applyLegacyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" && cfg.ListenAddr == DefaultConfig().ListenAddr {
		cfg.ListenAddr = ":" + port
	}
	if host := os.Getenv("PUBLIC_HOST"); host != "" && cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + host
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.Ytdlp.Path == "" {
		return fmt.Errorf("ytdlp.path must be set")
	}
	if c.Ytdlp.ResolveTimeout <= 0 {
		return fmt.Errorf("ytdlp.resolve_timeout must be positive")
	}
	if c.Ytdlp.ProbeTimeout <= 0 {
		return fmt.Errorf("ytdlp.probe_timeout must be positive")
	}
	if c.Ytdlp.KillGrace < 0 {
		return fmt.Errorf("ytdlp.kill_grace must be non-negative")
	}
	if c.Ytdlp.MaxProcesses < 0 {
		return fmt.Errorf("ytdlp.max_processes must be non-negative")
	}
	if c.Streams.MinHeight < 0 {
		return fmt.Errorf("streams.min_height must be non-negative")
	}
	if c.Streams.MaxFormats < 0 {
		return fmt.Errorf("streams.max_formats must be non-negative")
	}
	if c.YouTube.RequestsPerSecond <= 0 {
		return fmt.Errorf("youtube.requests_per_second must be positive")
	}
	if c.YouTube.Timeout <= 0 {
		return fmt.Errorf("youtube.timeout must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SettingsPath is the settings document inside DataDir.
func (c *Config) SettingsPath(name string) string {
	return filepath.Join(c.DataDir, name)
}
