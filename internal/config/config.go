// Package config loads and validates engine configuration from yaml files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort      = 8060
	defaultServerTimeout   = 30 * time.Second
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddress    = "localhost:6379"

	defaultMaxCrawlRetries  = 3
	defaultMaxPagesPerCrawl = 25
	defaultBatchTTL         = 7 * 24 * time.Hour
	defaultExtractorURL     = "http://localhost:8070"
)

// Config is the root configuration for the curation engine.
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration for event publishing.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Enabled is a feature flag; when false the engine runs without a
	// publisher and event calls are no-ops.
	Enabled bool `mapstructure:"enabled"`
}

// EngineConfig holds default budgets applied to new websites and batches.
type EngineConfig struct {
	MaxCrawlRetries  int           `mapstructure:"max_crawl_retries"`
	MaxPagesPerCrawl int           `mapstructure:"max_pages_per_crawl"`
	BatchTTL         time.Duration `mapstructure:"batch_ttl"`
}

// ExtractorConfig holds the fetch/extraction collaborator endpoint.
type ExtractorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from config.yaml (if present), the environment,
// and a local .env file, in increasing order of precedence for env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/curation-engine")

	setDefaults(v)

	// Missing config file is fine; env vars and defaults carry the load
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", defaultDatabasePort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "curation")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)

	v.SetDefault("redis.address", defaultRedisAddress)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("engine.max_crawl_retries", defaultMaxCrawlRetries)
	v.SetDefault("engine.max_pages_per_crawl", defaultMaxPagesPerCrawl)
	v.SetDefault("engine.batch_ttl", defaultBatchTTL)

	v.SetDefault("extractor.base_url", defaultExtractorURL)
	v.SetDefault("extractor.timeout", defaultServerTimeout)
}

// Validate checks that required fields are set and budgets are sane.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port is required and must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Engine.MaxCrawlRetries < 0 {
		return errors.New("engine.max_crawl_retries must not be negative")
	}
	if c.Engine.MaxPagesPerCrawl <= 0 {
		return errors.New("engine.max_pages_per_crawl must be positive")
	}
	if c.Engine.BatchTTL <= 0 {
		return errors.New("engine.batch_ttl must be positive")
	}
	if c.Extractor.BaseURL == "" {
		return errors.New("extractor.base_url is required")
	}
	return nil
}
