// Package config provides YAML-based configuration loading for echoplex.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the server and the client.
// Protocol, ports and the destination stay positional CLI arguments.
type Config struct {
	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Server tunes the echo service loops
	Server ServerConfig `mapstructure:"server"`

	// Client tunes the interactive relay
	Client ClientConfig `mapstructure:"client"`

	// Net holds dialing options
	Net NetConfig `mapstructure:"net"`

	// Metrics controls the optional HTTP endpoint for /metrics, /live and /ready
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig enables the observability HTTP listener when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	// GoroutineLimit fails the liveness check above this many goroutines
	GoroutineLimit int `mapstructure:"goroutine_limit"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/echoplex.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Server: ServerConfig{
			ServiceBuffer:  10,
			DatagramBuffer: 65507,
			PollTimeout:    time.Millisecond,
			PeerErrors:     "fail",
		},
		Client: ClientConfig{
			Format:      "quoted",
			ReadBuffer:  4096,
			ReadTimeout: 0,
		},
		Net:     NetConfig{DialAttempts: 1, DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000},
		Metrics: MetricsConfig{GoroutineLimit: 1000},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix ECHOPLEX and `.`/`-` are replaced with `_`.
// Example: ECHOPLEX_SERVER_PEER_ERRORS=drop
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ECHOPLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("server.service_buffer", cfg.Server.ServiceBuffer)
	v.SetDefault("server.datagram_buffer", cfg.Server.DatagramBuffer)
	v.SetDefault("server.poll_timeout", cfg.Server.PollTimeout)
	v.SetDefault("server.peer_errors", cfg.Server.PeerErrors)
	v.SetDefault("server.reuse_port", cfg.Server.ReusePort)
	v.SetDefault("client.format", cfg.Client.Format)
	v.SetDefault("client.read_buffer", cfg.Client.ReadBuffer)
	v.SetDefault("client.read_timeout", cfg.Client.ReadTimeout)
	v.SetDefault("client.transcript", cfg.Client.Transcript)
	v.SetDefault("client.transcript_format", cfg.Client.TranscriptFormat)
	v.SetDefault("net.dial_attempts", cfg.Net.DialAttempts)
	v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
	v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.goroutine_limit", cfg.Metrics.GoroutineLimit)

	if path == "" {
		if envPath := os.Getenv("ECHOPLEX_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("echoplex")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".echoplex"))
		}
	}

	// a missing config file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Client.validate(); err != nil {
		return err
	}
	if c.Net.DialAttempts < 1 {
		c.Net.DialAttempts = 1
	}
	return nil
}
