// Package config loads application configuration from YAML files with
// environment-variable overrides. Every subsystem (server, storage, messaging,
// index layout, query execution) gets its own typed section.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the generation
// registry.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Journal         string `yaml:"journal"`
	IndexComplete   string `yaml:"indexComplete"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig describes the on-disk index layout shared by the indexer and
// the searcher.
type IndexConfig struct {
	Root             string `yaml:"root"`
	BlockSize        int    `yaml:"blockSize"`
	PositionsBackend string `yaml:"positionsBackend"`
	VerifyChecksums  bool   `yaml:"verifyChecksums"`
	KeepGenerations  int    `yaml:"keepGenerations"`
}

// IndexerConfig controls journal rotation and how often a new index
// generation is constructed.
type IndexerConfig struct {
	JournalDir        string        `yaml:"journalDir"`
	RotateEntries     int           `yaml:"rotateEntries"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	ConstructInterval time.Duration `yaml:"constructInterval"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultLimit      int           `yaml:"defaultLimit"`
	MaxResults        int           `yaml:"maxResults"`
	DefaultBudget     time.Duration `yaml:"defaultBudget"`
	BufferSize        int           `yaml:"bufferSize"`
	MaxCandidates     int           `yaml:"maxCandidates"`
	FallbackThreshold int           `yaml:"fallbackThreshold"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	RateLimit         float64       `yaml:"rateLimit"`
	PollInterval      time.Duration `yaml:"pollInterval"`
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
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "reverseindex",
			User:            "reverseindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "reverse-index",
			Topics: KafkaTopics{
				Journal:         "index.journal",
				IndexComplete:   "index.complete",
				CacheInvalidate: "cache.invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			Root:             "data/index",
			BlockSize:        2048,
			PositionsBackend: "mmap",
			VerifyChecksums:  true,
			KeepGenerations:  2,
		},
		Indexer: IndexerConfig{
			JournalDir:        "data/journal",
			RotateEntries:     50000,
			FlushInterval:     10 * time.Second,
			ConstructInterval: 5 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit:      10,
			MaxResults:        100,
			DefaultBudget:     150 * time.Millisecond,
			BufferSize:        512,
			MaxCandidates:     4096,
			FallbackThreshold: 0,
			MaxConcurrent:     64,
			PollInterval:      5 * time.Second,
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

func (c *Config) validate() error {
	switch c.Index.PositionsBackend {
	case "", "mmap", "pread":
	default:
		return fmt.Errorf("index.positionsBackend: unknown backend %q", c.Index.PositionsBackend)
	}
	if c.Index.BlockSize < 64 || c.Index.BlockSize%8 != 0 {
		return fmt.Errorf("index.blockSize: %d is not a multiple of 8 of at least 64", c.Index.BlockSize)
	}
	if c.Search.BufferSize <= 0 {
		return fmt.Errorf("search.bufferSize must be positive")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit must be in [1, %d]", c.Search.MaxResults)
	}
	return nil
}

// applyEnvOverrides reads RI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("RI_SERVER_PORT", &cfg.Server.Port)
	setBool("RI_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("RI_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("RI_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("RI_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("RI_POSTGRES_USER", &cfg.Postgres.User)
	setString("RI_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("RI_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("RI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("RI_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("RI_REDIS_ADDR", &cfg.Redis.Addr)
	setString("RI_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("RI_INDEX_ROOT", &cfg.Index.Root)
	setInt("RI_INDEX_BLOCK_SIZE", &cfg.Index.BlockSize)
	setString("RI_INDEX_POSITIONS_BACKEND", &cfg.Index.PositionsBackend)
	setString("RI_INDEXER_JOURNAL_DIR", &cfg.Indexer.JournalDir)
	setDuration("RI_INDEXER_CONSTRUCT_INTERVAL", &cfg.Indexer.ConstructInterval)
	setDuration("RI_SEARCH_DEFAULT_BUDGET", &cfg.Search.DefaultBudget)
	setInt("RI_SEARCH_FALLBACK_THRESHOLD", &cfg.Search.FallbackThreshold)
	setString("RI_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("RI_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("RI_METRICS_PORT", &cfg.Metrics.Port)
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

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
