// Package config loads and validates estimator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/graded-card-estimator/internal/gamestop"
	"github.com/JakeFAU/graded-card-estimator/internal/logging"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Snapshot storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   logging.Config  `mapstructure:"logging"`
	GameStop  GameStopConfig  `mapstructure:"gamestop"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// GameStopConfig points at the estimate page and describes its markup.
type GameStopConfig struct {
	EstimateURL string             `mapstructure:"estimate_url"`
	Currency    string             `mapstructure:"currency"`
	Selectors   gamestop.Selectors `mapstructure:"selectors"`
}

// BrowserConfig configures the headless Chrome session.
type BrowserConfig struct {
	ExecPath             string `mapstructure:"exec_path"`
	Headless             bool   `mapstructure:"headless"`
	NoSandbox            bool   `mapstructure:"no_sandbox"`
	UserAgent            string `mapstructure:"user_agent"`
	MaxParallel          int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds    int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis         int    `mapstructure:"settle_ms"`
	ActionTimeoutSeconds int    `mapstructure:"action_timeout_seconds"`
	ResultTimeoutSeconds int    `mapstructure:"result_timeout_seconds"`
}

// RateLimitConfig throttles upstream lookups.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LookupConfig bounds a single estimate lookup.
type LookupConfig struct {
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RedisConfig addresses the Redis cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig selects the estimate cache.
type CacheConfig struct {
	Backend    string      `mapstructure:"backend"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
	MaxEntries int         `mapstructure:"max_entries"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// LocalStorageConfig configures the filesystem snapshot store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig configures the GCS snapshot store.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// StorageConfig selects where diagnostic snapshots go.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Mode    string             `mapstructure:"mode"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
	GCS     GCSStorageConfig   `mapstructure:"gcs"`
}

// DatabaseConfig controls access to the lookup history database.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
	HistorySize  int    `mapstructure:"history_size"`
}

// PubSubConfig holds metadata for lookup event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// ClientConfig is used by the query command to reach a running server.
type ClientConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ESTIMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "ESTIMATOR_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("gamestop.estimate_url", gamestop.DefaultEstimateURL)
	v.SetDefault("gamestop.currency", "USD")
	sel := gamestop.DefaultSelectors()
	v.SetDefault("gamestop.selectors.psa_input", sel.PSAInput)
	v.SetDefault("gamestop.selectors.submit_tag", sel.SubmitTag)
	v.SetDefault("gamestop.selectors.submit_text", sel.SubmitText)
	v.SetDefault("gamestop.selectors.result_container", sel.ResultContainer)
	v.SetDefault("gamestop.selectors.no_offer", sel.NoOffer)
	v.SetDefault("gamestop.selectors.no_offer_text", sel.NoOfferText)
	v.SetDefault("gamestop.selectors.card_name", sel.CardName)
	v.SetDefault("gamestop.selectors.card_grade", sel.CardGrade)
	v.SetDefault("gamestop.selectors.cash_offer", sel.CashOffer)
	v.SetDefault("gamestop.selectors.credit_offer", sel.CreditOffer)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.nav_timeout_seconds", 20)
	v.SetDefault("browser.settle_ms", 1000)
	v.SetDefault("browser.action_timeout_seconds", 10)
	v.SetDefault("browser.result_timeout_seconds", 15)

	v.SetDefault("lookup.timeout_seconds", 60)
	v.SetDefault("lookup.rate_limit.rps", 1.0)
	v.SetDefault("lookup.rate_limit.burst", 2)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl_seconds", 900)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.mode", string(gamestop.SnapshotOnError))
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("storage.gcs.bucket", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "estimate_lookups")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("database.history_size", 100)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "graded-card-estimator")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("client.base_url", "http://localhost:8000")
	v.SetDefault("client.timeout_seconds", 120)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.GameStop.EstimateURL) == "" {
		return fmt.Errorf("gamestop.estimate_url is required")
	}
	if err := c.GameStop.Selectors.Validate(); err != nil {
		return fmt.Errorf("gamestop.selectors: %w", err)
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 || c.Browser.ActionTimeoutSeconds <= 0 || c.Browser.ResultTimeoutSeconds <= 0 {
		return fmt.Errorf("browser timeouts must be > 0")
	}
	if c.Lookup.TimeoutSeconds <= 0 {
		return fmt.Errorf("lookup.timeout_seconds must be > 0")
	}
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend)
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for local storage")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for gcs storage")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend)
	}
	switch gamestop.SnapshotMode(c.Storage.Mode) {
	case gamestop.SnapshotOff, gamestop.SnapshotOnError, gamestop.SnapshotAlways:
	default:
		return fmt.Errorf("storage.mode %q is not one of off, on_error, always", c.Storage.Mode)
	}
	return nil
}

// SnapshotMode resolves the effective snapshot mode; without a backend
// nothing can be written.
func (c Config) SnapshotMode() gamestop.SnapshotMode {
	if c.Storage.Backend == StorageNone {
		return gamestop.SnapshotOff
	}
	return gamestop.SnapshotMode(c.Storage.Mode)
}

// RequestTimeout is the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds)
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.Server.ShutdownTimeoutSeconds)
}

// LookupTimeout bounds one upstream lookup.
func (c Config) LookupTimeout() time.Duration {
	return seconds(c.Lookup.TimeoutSeconds)
}

// CacheTTL is how long successful estimates are reused.
func (c Config) CacheTTL() time.Duration {
	return seconds(c.Cache.TTLSeconds)
}

// BrowserSettings converts the browser section for gamestop.NewBrowser.
func (c Config) BrowserSettings() gamestop.BrowserConfig {
	return gamestop.BrowserConfig{
		EstimateURL:       c.GameStop.EstimateURL,
		ExecPath:          c.Browser.ExecPath,
		Headless:          c.Browser.Headless,
		NoSandbox:         c.Browser.NoSandbox,
		UserAgent:         c.Browser.UserAgent,
		MaxParallel:       c.Browser.MaxParallel,
		NavigationTimeout: seconds(c.Browser.NavTimeoutSeconds),
		SettleDelay:       time.Duration(c.Browser.SettleMillis) * time.Millisecond,
		ActionTimeout:     seconds(c.Browser.ActionTimeoutSeconds),
		ResultTimeout:     seconds(c.Browser.ResultTimeoutSeconds),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
