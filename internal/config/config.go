package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Enforcement   EnforcementConfig   `mapstructure:"enforcement"`
	Sampler       SamplerConfig       `mapstructure:"sampler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Timezone      string              `mapstructure:"timezone"`
}

// ServerConfig defines the metrics and health endpoint
type ServerConfig struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Path  string      `mapstructure:"path"`
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "sqlite"
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines the usage reconciliation loop
type TrackingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Interval          string `mapstructure:"interval"`
	RetentionDays     int    `mapstructure:"retention_days"`
	RetentionSchedule string `mapstructure:"retention_schedule"` // cron spec
}

// EnforcementConfig defines the enforcement loop
type EnforcementConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Interval         string `mapstructure:"interval"`
	ForegroundWindow string `mapstructure:"foreground_window"`
	PolicyEngine     string `mapstructure:"policy_engine"` // "builtin" or "opa"
	OPAPolicyDir     string `mapstructure:"opa_policy_dir"`
}

// SamplerConfig defines the desktop foreground sampler
type SamplerConfig struct {
	PollInterval  string            `mapstructure:"poll_interval"`
	MaxGap        string            `mapstructure:"max_gap"`
	AppNames      map[string]string `mapstructure:"app_names"` // process name -> display name
	NameCacheSize int               `mapstructure:"name_cache_size"`
	NameCacheTTL  string            `mapstructure:"name_cache_ttl"`
}

// NotificationsConfig defines how block and warn signals surface
type NotificationsConfig struct {
	Desktop    bool `mapstructure:"desktop"`
	SwitchAway bool `mapstructure:"switch_away"`
}

// Location returns the time zone that defines the daily boundary.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SCREENTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.metrics_port", 9464)
	v.SetDefault("server.bind_address", "127.0.0.1")

	v.SetDefault("storage.path", defaultDataPath())
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.interval", "30s")
	v.SetDefault("tracking.retention_days", 30)
	v.SetDefault("tracking.retention_schedule", "@daily")

	v.SetDefault("enforcement.enabled", true)
	v.SetDefault("enforcement.interval", "2s")
	v.SetDefault("enforcement.foreground_window", "3s")
	v.SetDefault("enforcement.policy_engine", "builtin")
	v.SetDefault("enforcement.opa_policy_dir", "")

	v.SetDefault("sampler.poll_interval", "1s")
	v.SetDefault("sampler.max_gap", "5s")
	v.SetDefault("sampler.app_names", map[string]string{})
	v.SetDefault("sampler.name_cache_size", 256)
	v.SetDefault("sampler.name_cache_ttl", "10m")

	v.SetDefault("notifications.desktop", true)
	v.SetDefault("notifications.switch_away", true)

	v.SetDefault("timezone", "Local")
}

// Defaults returns the configuration used when no file or environment overrides exist.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// freeformSections hold user-chosen keys.
var freeformSections = []string{"sampler.app_names."}

// KnownKey reports whether key is a recognised configuration key.
func KnownKey(key string) bool {
	for _, prefix := range freeformSections {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	v := viper.New()
	setDefaults(v)
	return v.IsSet(key)
}

func defaultDataPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "screentime", "screentime.bolt")
	}
	return "screentime.bolt"
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	for key, value := range map[string]string{
		"tracking.interval":             cfg.Tracking.Interval,
		"enforcement.interval":          cfg.Enforcement.Interval,
		"enforcement.foreground_window": cfg.Enforcement.ForegroundWindow,
		"sampler.poll_interval":         cfg.Sampler.PollInterval,
		"sampler.max_gap":               cfg.Sampler.MaxGap,
		"sampler.name_cache_ttl":        cfg.Sampler.NameCacheTTL,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}

	if cfg.Tracking.RetentionDays < 1 {
		return fmt.Errorf("tracking.retention_days must be at least 1, got %d", cfg.Tracking.RetentionDays)
	}

	switch cfg.Enforcement.PolicyEngine {
	case "", "builtin":
		cfg.Enforcement.PolicyEngine = "builtin"
	case "opa":
	default:
		return fmt.Errorf("unsupported enforcement.policy_engine: %s (must be builtin or opa)", cfg.Enforcement.PolicyEngine)
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}

	return nil
}
