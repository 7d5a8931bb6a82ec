// Package config handles configuration loading for chainpulse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes every environment override, e.g. CHAINPULSE_API_PORT.
const EnvPrefix = "CHAINPULSE"

// Config represents the complete application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"     yaml:"api"     json:"api"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"   json:"store"`
	Signal  SignalConfig  `mapstructure:"signal"  yaml:"signal"  json:"signal"`
	Flow    FlowConfig    `mapstructure:"flow"    yaml:"flow"    json:"flow"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"   json:"cache"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string   `mapstructure:"host"             yaml:"host"             json:"host"`
	Port           int      `mapstructure:"port"             yaml:"port"             json:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"     yaml:"cors_origins"     json:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"   yaml:"rate_limit_rps"   json:"rate_limit_rps"` // ingest requests per second per client
	RateLimitBurst int      `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`
	RequestTimeout int      `mapstructure:"request_timeout"  yaml:"request_timeout"  json:"request_timeout"` // seconds
}

// StoreConfig selects where snapshots live.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"` // "memory" or "sqlite"
	Path   string `mapstructure:"path"   yaml:"path"   json:"path"`   // sqlite database file
}

// SignalConfig holds the bias classifier thresholds.
type SignalConfig struct {
	OIPercentThreshold float64 `mapstructure:"oi_percent_threshold" yaml:"oi_percent_threshold" json:"oi_percent_threshold"` // fraction, e.g. 0.005
	PCRThreshold       float64 `mapstructure:"pcr_threshold"        yaml:"pcr_threshold"        json:"pcr_threshold"`
	UseVolume          bool    `mapstructure:"use_volume"           yaml:"use_volume"           json:"use_volume"`
}

// FlowConfig bounds the flow-shift tables.
type FlowConfig struct {
	TopN         int     `mapstructure:"top_n"          yaml:"top_n"          json:"top_n"`
	MinAbsChange float64 `mapstructure:"min_abs_change" yaml:"min_abs_change" json:"min_abs_change"` // contracts
}

// CacheConfig controls memoization of derived series.
type CacheConfig struct {
	TTL             int `mapstructure:"ttl"              yaml:"ttl"              json:"ttl"`              // seconds
	CleanupInterval int `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"       yaml:"level"       json:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"      yaml:"format"      json:"format"` // "console" or "json"
	File       bool   `mapstructure:"file"        yaml:"file"        json:"file"`
	FilePath   string `mapstructure:"file_path"   yaml:"file_path"   json:"file_path"`
	MaxSize    int    `mapstructure:"max_size"    yaml:"max_size"    json:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     yaml:"max_age"     json:"max_age"` // days
}

var (
	pathMu     sync.RWMutex
	activePath string
)

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.chainpulse/config.yaml (home directory)
//  3. /etc/chainpulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: CHAINPULSE_<SECTION>_<KEY>, e.g., CHAINPULSE_STORE_DRIVER
func Load() (*Config, error) {
	v := newViper()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".chainpulse"))
	v.AddConfigPath("/etc/chainpulse")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		setActivePath(used)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.rate_limit_rps", 5.0)
	v.SetDefault("api.rate_limit_burst", 10)
	v.SetDefault("api.request_timeout", 60)

	// Store defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", filepath.Join(homeDir(), ".chainpulse", "chainpulse.db"))

	// Signal defaults
	v.SetDefault("signal.oi_percent_threshold", 0.005)
	v.SetDefault("signal.pcr_threshold", 0.01)
	v.SetDefault("signal.use_volume", true)

	// Flow defaults
	v.SetDefault("flow.top_n", 8)
	v.SetDefault("flow.min_abs_change", 1000.0)

	// Cache defaults
	v.SetDefault("cache.ttl", 30)
	v.SetDefault("cache.cleanup_interval", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(homeDir(), ".chainpulse", "logs", "chainpulse.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.API.Port < 1 || c.API.Port > 65535:
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	case c.API.RateLimitRPS < 0:
		return fmt.Errorf("api.rate_limit_rps must not be negative")
	case c.API.RateLimitRPS > 0 && c.API.RateLimitBurst < 1:
		return fmt.Errorf("api.rate_limit_burst must be at least 1")
	case c.API.RequestTimeout < 0:
		return fmt.Errorf("api.request_timeout must not be negative")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver %q: want memory or sqlite", c.Store.Driver)
	}
	switch {
	case c.Signal.OIPercentThreshold < 0:
		return fmt.Errorf("signal.oi_percent_threshold must not be negative")
	case c.Signal.PCRThreshold < 0:
		return fmt.Errorf("signal.pcr_threshold must not be negative")
	case c.Flow.TopN < 1:
		return fmt.Errorf("flow.top_n must be at least 1")
	case c.Flow.MinAbsChange < 0:
		return fmt.Errorf("flow.min_abs_change must not be negative")
	case c.Cache.TTL < 0:
		return fmt.Errorf("cache.ttl must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want console or json", c.Logging.Format)
	}
	return nil
}

// ConfigFilePath returns the file the running config was loaded from, or
// ~/.chainpulse/config.yaml when none was.
func ConfigFilePath() string {
	pathMu.RLock()
	defer pathMu.RUnlock()
	if activePath != "" {
		return activePath
	}
	return filepath.Join(homeDir(), ".chainpulse", "config.yaml")
}

func setActivePath(p string) {
	pathMu.Lock()
	activePath = p
	pathMu.Unlock()
}

// SaveToFile writes cfg as YAML to path, creating parent directories.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
