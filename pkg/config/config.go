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

const envPrefix = "PATHKEEPER"

// Config is the runtime configuration of the pathkeeper binary.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Store    StoreConfig    `mapstructure:"store"`
	Recorder RecorderConfig `mapstructure:"recorder"`

	// Trace sends every expansion step to the logger at debug level.
	Trace bool `mapstructure:"trace"`
}

// LogConfig selects the zap level and encoder mode.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig holds the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig configures the content-addressed store.
type StoreConfig struct {
	// HashAlgo is the multihash function for CIDs ("sha256" or "blake3")
	HashAlgo string `mapstructure:"hash_algo"`
}

// RecorderConfig tunes the journal processor.
type RecorderConfig struct {
	// PollInterval is how long an idle processor waits before rescanning the journal
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// DrainTimeout is the grace period given to the processor after the command exits
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			HashAlgo: "sha256",
		},
		Recorder: RecorderConfig{
			PollInterval: 100 * time.Millisecond,
			DrainTimeout: 200 * time.Millisecond,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("store.hash_algo", d.Store.HashAlgo)
	v.SetDefault("recorder.poll_interval", d.Recorder.PollInterval)
	v.SetDefault("recorder.drain_timeout", d.Recorder.DrainTimeout)
}

// Load reads configuration from configPath, or from pathkeeper.{yaml,json,toml}
// in the working directory or ~/.pathkeeper when configPath is empty. A missing
// default file is not an error. PATHKEEPER_* environment variables override
// file values (PATHKEEPER_LOG_LEVEL for log.level).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pathkeeper")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pathkeeper"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Log.Level)
	}

	if c.Store.HashAlgo != "sha256" && c.Store.HashAlgo != "blake3" {
		return fmt.Errorf("invalid hash algorithm: %s (must be 'sha256' or 'blake3')", c.Store.HashAlgo)
	}

	if c.Recorder.PollInterval <= 0 {
		return fmt.Errorf("recorder poll interval must be positive, got: %s", c.Recorder.PollInterval)
	}

	if c.Recorder.DrainTimeout < 0 {
		return fmt.Errorf("recorder drain timeout must not be negative, got: %s", c.Recorder.DrainTimeout)
	}

	return nil
}
