package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the waitlist service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Badger      BadgerConfig      `mapstructure:"badger"`
	Waitlist    WaitlistConfig    `mapstructure:"waitlist"`
	Invites     InviteConfig      `mapstructure:"invites"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend            string `mapstructure:"backend"`
	MaxConflictRetries int    `mapstructure:"max_conflict_retries"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection options.
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TLS       bool          `mapstructure:"tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// BadgerConfig holds embedded Badger options.
type BadgerConfig struct {
	Path       string `mapstructure:"path"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// WaitlistConfig tunes the ordered membership store.
type WaitlistConfig struct {
	MaxLength         int           `mapstructure:"max_length"`
	OrderStrategy     string        `mapstructure:"order_strategy"`
	ScoreGap          float64       `mapstructure:"score_gap"`
	ScoreMinGap       float64       `mapstructure:"score_min_gap"`
	MoveAttempts      int           `mapstructure:"move_attempts"`
	MoveBackoff       time.Duration `mapstructure:"move_backoff"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl"`
	MoveInsertsAbsent bool          `mapstructure:"move_inserts_absent"`
}

// InviteConfig tunes invite code generation.
type InviteConfig struct {
	CodeLength       int    `mapstructure:"code_length"`
	Alphabet         string `mapstructure:"alphabet"`
	MaxPerCreator    int    `mapstructure:"max_per_creator"`
	GenerateAttempts int    `mapstructure:"generate_attempts"`
	DefaultMinBump   int    `mapstructure:"default_min_bump"`
}

// RateLimitConfig caps code redemption attempts per client.
type RateLimitConfig struct {
	CodeUsePerMinute int `mapstructure:"code_use_per_minute"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules background jobs using cron specs.
type MaintenanceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	GaugeSchedule     string `mapstructure:"gauge_schedule"`
	PurgeSchedule     string `mapstructure:"purge_schedule"`
	RebalanceSchedule string `mapstructure:"rebalance_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	return load(v, false)
}

// LoadConfigFile reads configuration from one explicit file. Unlike LoadConfig
// a missing file is an error.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v, true)
}

func load(v *viper.Viper, requireFile bool) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("WAITLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if requireFile || !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_encoding", "json")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.max_conflict_retries", 8)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/waitlist.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.timeout", "5s")
	v.SetDefault("redis.key_prefix", "waitlist:")

	v.SetDefault("badger.path", "./data/badger")
	v.SetDefault("badger.in_memory", false)
	v.SetDefault("badger.sync_writes", true)

	v.SetDefault("waitlist.max_length", 0)
	v.SetDefault("waitlist.order_strategy", "list")
	v.SetDefault("waitlist.score_gap", 10_000_000)
	v.SetDefault("waitlist.score_min_gap", 1)
	v.SetDefault("waitlist.move_attempts", 3)
	v.SetDefault("waitlist.move_backoff", "100ms")
	v.SetDefault("waitlist.lease_ttl", "1s")
	v.SetDefault("waitlist.move_inserts_absent", false)

	v.SetDefault("invites.code_length", 8)
	v.SetDefault("invites.alphabet", "ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	v.SetDefault("invites.max_per_creator", 5)
	v.SetDefault("invites.generate_attempts", 50)
	v.SetDefault("invites.default_min_bump", 1)

	v.SetDefault("ratelimit.code_use_per_minute", 30)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.gauge_schedule", "@every 1m")
	v.SetDefault("maintenance.purge_schedule", "@hourly")
	v.SetDefault("maintenance.rebalance_schedule", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
