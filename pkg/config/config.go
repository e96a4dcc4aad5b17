// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Auth, Search, Analytics, etc.).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`

	// ClientID is stamped on published messages as the "source" header.
	ClientID string `yaml:"clientId"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// Addrs, when set, replaces Addr and may list cluster or sentinel nodes.
	Addrs []string `yaml:"addrs"`
}

// AuthConfig controls bearer-token verification and the identity provider
// used by the command-line client to sign in.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwtSecret"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	Leeway      time.Duration `yaml:"leeway"`
	IdentityURL string        `yaml:"identityUrl"`
	AnonKey     string        `yaml:"anonKey"`
	// WriteRateLimit is the number of mutating requests a caller may make
	// per minute.
	WriteRateLimit int `yaml:"writeRateLimit"`
	// RateLimitStore is "memory" or "redis". Redis shares the limit across
	// replicas; memory is used when Redis is unreachable at startup.
	RateLimitStore string `yaml:"rateLimitStore"`
}

// SearchConfig controls the fuzzy search pipeline and listing limits.
type SearchConfig struct {
	Threshold      float64            `yaml:"threshold"`
	MinMatchLength int                `yaml:"minMatchLength"`
	Weights        map[string]float64 `yaml:"weights"`
	DefaultLimit   int                `yaml:"defaultLimit"`
	MaxResults     int                `yaml:"maxResults"`
	MaxQueryLength int                `yaml:"maxQueryLength"`
	SnippetLength  int                `yaml:"snippetLength"`
	Debounce       time.Duration      `yaml:"debounce"`
}

// AnalyticsConfig controls the analytics service and how the API reaches it.
type AnalyticsConfig struct {
	URL              string        `yaml:"url"`
	Port             int           `yaml:"port"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// SnapshotRetain is how many snapshots are kept; older ones are pruned.
	SnapshotRetain int `yaml:"snapshotRetain"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging (sample rate).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a .env file (if present), then a YAML config file (if provided),
// and finally applies environment-variable overrides. It returns a Config
// populated with sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with. Every
// problem found is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		errs = append(errs, fmt.Errorf("search.threshold must be within [0,1], got %v", c.Search.Threshold))
	}
	if c.Search.MinMatchLength < 1 {
		errs = append(errs, fmt.Errorf("search.minMatchLength must be positive, got %d", c.Search.MinMatchLength))
	}
	for field, w := range c.Search.Weights {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("search.weights.%s must be positive, got %v", field, w))
		}
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		errs = append(errs, fmt.Errorf("search.defaultLimit (%d) exceeds search.maxResults (%d)",
			c.Search.DefaultLimit, c.Search.MaxResults))
	}
	switch c.Auth.RateLimitStore {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("auth.rateLimitStore must be memory or redis, got %q", c.Auth.RateLimitStore))
	}
	return errors.Join(errs...)
}

// loadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error; variables already present in
// the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "promptvault",
			User:            "promptvault",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "promptvault-group",
			ClientID:      "promptvault",
			Topics: KafkaTopics{
				AnalyticsEvents: "prompt-analytics",
				CacheInvalidate: "prompt-cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Auth: AuthConfig{
			Leeway:         30 * time.Second,
			IdentityURL:    "http://localhost:9999",
			WriteRateLimit: 30,
			RateLimitStore: "memory",
		},
		Search: SearchConfig{
			Threshold:      0.4,
			MinMatchLength: 2,
			Weights: map[string]float64{
				"title":    2.0,
				"body":     1.0,
				"category": 0.5,
				"tags":     1.5,
			},
			DefaultLimit:   20,
			MaxResults:     50,
			MaxQueryLength: 128,
			SnippetLength:  160,
			Debounce:       300 * time.Millisecond,
		},
		Analytics: AnalyticsConfig{
			URL:              "http://localhost:8083",
			Port:             8083,
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			SnapshotRetain:   1440,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PV_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("PV_SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv("PV_SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}

	setString("PV_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("PV_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("PV_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("PV_POSTGRES_USER", &cfg.Postgres.User)
	setString("PV_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("PV_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	if v := os.Getenv("PV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("PV_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)

	setString("PV_REDIS_ADDR", &cfg.Redis.Addr)
	setString("PV_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("PV_REDIS_ADDRS"); v != "" {
		cfg.Redis.Addrs = strings.Split(v, ",")
	}

	setString("PV_AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("PV_AUTH_ISSUER", &cfg.Auth.Issuer)
	setString("PV_AUTH_AUDIENCE", &cfg.Auth.Audience)
	setString("PV_AUTH_IDENTITY_URL", &cfg.Auth.IdentityURL)
	setString("PV_AUTH_ANON_KEY", &cfg.Auth.AnonKey)
	setString("PV_AUTH_RATE_LIMIT_STORE", &cfg.Auth.RateLimitStore)

	if v := os.Getenv("PV_SEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Threshold = f
		}
	}
	setInt("PV_SEARCH_MIN_MATCH_LENGTH", &cfg.Search.MinMatchLength)

	setString("PV_ANALYTICS_URL", &cfg.Analytics.URL)
	setInt("PV_ANALYTICS_PORT", &cfg.Analytics.Port)

	setString("PV_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("PV_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("PV_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
