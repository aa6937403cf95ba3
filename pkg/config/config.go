// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Tokenizer, Cache, Storage, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Documents DocumentsConfig `yaml:"documents"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables persistence and the corpus lives in memory only.
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

// RedisConfig holds Redis connection parameters for the stats cache tier.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings. Empty Brokers disables
// both the corpus event stream and the ingest consumer.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	CorpusEvents   string `yaml:"corpusEvents"`
}

// TokenizerConfig is the term normalisation policy.
type TokenizerConfig struct {
	MinTermLength   int      `yaml:"minTermLength"`
	Lowercase       bool     `yaml:"lowercase"`
	StripDigitsOnly bool     `yaml:"stripDigitsOnly"`
	Stem            bool     `yaml:"stem"`
	StopWords       []string `yaml:"stopWords"`
}

// CacheConfig bounds the in-process stats cache and tunes the protection
// around the Redis tier.
type CacheConfig struct {
	MaxEntries       int           `yaml:"maxEntries"`
	BackendTimeout   time.Duration `yaml:"backendTimeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// StorageConfig selects where raw uploaded bytes are kept.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

// DocumentsConfig limits uploads and TF-IDF reads.
type DocumentsConfig struct {
	MaxBytes         int `yaml:"maxBytes"`
	DefaultTermLimit int `yaml:"defaultTermLimit"`
	MaxTermLimit     int `yaml:"maxTermLimit"`
}

// AuthConfig controls API key authentication and per-key rate limiting.
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tfidf",
			User:            "tfidf",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tfidf-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				CorpusEvents:   "corpus-events",
			},
		},
		Tokenizer: TokenizerConfig{
			MinTermLength:   1,
			Lowercase:       true,
			StripDigitsOnly: true,
		},
		Cache: CacheConfig{
			MaxEntries:       1024,
			BackendTimeout:   200 * time.Millisecond,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "fs",
			Dir:    "./storage",
			Region: "us-east-1",
		},
		Documents: DocumentsConfig{
			MaxBytes:         10 << 20,
			DefaultTermLimit: 50,
			MaxTermLimit:     100,
		},
		Auth: AuthConfig{
			Enabled:         false,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Tokenizer.MinTermLength < 0:
		return apperrors.Validation("tokenizer.minTermLength must be >= 0, got %d", c.Tokenizer.MinTermLength)
	case c.Cache.MaxEntries < 1:
		return apperrors.Validation("cache.maxEntries must be >= 1, got %d", c.Cache.MaxEntries)
	case c.Documents.MaxBytes < 1:
		return apperrors.Validation("documents.maxBytes must be >= 1, got %d", c.Documents.MaxBytes)
	case c.Documents.MaxTermLimit < 1:
		return apperrors.Validation("documents.maxTermLimit must be >= 1, got %d", c.Documents.MaxTermLimit)
	case c.Documents.DefaultTermLimit < 1 || c.Documents.DefaultTermLimit > c.Documents.MaxTermLimit:
		return apperrors.Validation("documents.defaultTermLimit must be within 1..%d, got %d",
			c.Documents.MaxTermLimit, c.Documents.DefaultTermLimit)
	}
	switch c.Storage.Driver {
	case "fs":
		if c.Storage.Dir == "" {
			return apperrors.Validation("storage.dir is required for the fs driver")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return apperrors.Validation("storage.bucket is required for the s3 driver")
		}
	default:
		return apperrors.Validation("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// applyEnvOverrides reads TF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("TF_POSTGRES_HOST"); ok {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TF_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v, ok := os.LookupEnv("TF_KAFKA_BROKERS"); ok {
		if v == "" {
			cfg.Kafka.Brokers = nil
		} else {
			cfg.Kafka.Brokers = strings.Split(v, ",")
		}
	}
	if v, ok := os.LookupEnv("TF_REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TF_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("TF_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("TF_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("TF_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("TF_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("TF_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("TF_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("TF_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("TF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
