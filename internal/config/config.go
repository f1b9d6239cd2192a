// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (KORPUS_* prefix, runtime override)
//  2. Config file (~/.korpus/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: model and embedder selection for extraction and vector generation
//   - Storage: PostgreSQL connection (see storage.go)
//   - Chunking: base chunk size and overlap
//   - Worker: extraction worker pool sizing and retry policy
//   - Observability: OTLP trace export
//
// Security: sensitive data (passwords) are never logged; MarshalJSON masks them.
// Validation: range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the chunk overlap is out of range.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidWorkerConcurrency indicates the worker concurrency is out of range.
	ErrInvalidWorkerConcurrency = errors.New("invalid worker concurrency")

	// ErrInvalidWorkerRateLimit indicates the worker rate limit is out of range.
	ErrInvalidWorkerRateLimit = errors.New("invalid worker rate limit")

	// ErrInvalidMaxAttempts indicates the job retry limit is out of range.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions
	// (Matryoshka Representation Learning); the pgvector schema uses 768.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default model used for relationship and
	// entity extraction.
	DefaultModelName = "gemini-2.5-flash"

	// EmbeddingDimension is the fixed vector dimension of the chunks table.
	// Changing this requires a schema migration.
	EmbeddingDimension = 768

	// DefaultChunkSize is the base chunk size in tokens.
	DefaultChunkSize = 256

	// DefaultChunkOverlap is the base chunk overlap in tokens.
	DefaultChunkOverlap = 32

	// DefaultWorkerConcurrency bounds the extraction worker pool.
	DefaultWorkerConcurrency = 5

	// DefaultWorkerRateLimit caps model calls per second across the pool.
	DefaultWorkerRateLimit = 10

	// DefaultMaxAttempts is the job retry limit before a job is retained
	// in the failed state.
	DefaultMaxAttempts = 3
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Chunking defaults (per-file-type strategies derive from these)
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Extraction worker pool
	WorkerConcurrency int           `mapstructure:"worker_concurrency" json:"worker_concurrency"`
	WorkerRateLimit   float64       `mapstructure:"worker_rate_limit" json:"worker_rate_limit"`
	MaxAttempts       int           `mapstructure:"max_attempts" json:"max_attempts"`
	PollInterval      time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// Observability (OTLP trace export; disabled when endpoint is empty)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// MarshalJSON masks sensitive fields when the config is serialized,
// so accidental logging never leaks credentials.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := *c
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	return json.Marshal((*alias)(&masked))
}

// Load reads configuration from all sources and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file: ~/.korpus/config.yaml (missing file is not an error)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".korpus"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment overrides: KORPUS_POSTGRES_HOST, KORPUS_MODEL_NAME, ...
	v.SetEnvPrefix("KORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DATABASE_URL takes precedence over individual postgres_* settings,
	// matching common cloud deployment conventions.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	v.SetDefault("worker_concurrency", DefaultWorkerConcurrency)
	v.SetDefault("worker_rate_limit", DefaultWorkerRateLimit)
	v.SetDefault("max_attempts", DefaultMaxAttempts)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("retry_base_delay", 5*time.Second)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "korpus")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "korpus")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "korpus")
	v.SetDefault("environment", "dev")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}
