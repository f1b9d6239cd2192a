package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the SSL modes accepted by libpq-compatible drivers.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and returns the first violation.
// Sentinel errors allow callers to branch with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.ChunkSize < 16 || c.ChunkSize > 8192 {
		return fmt.Errorf("%w: must be between 16 and 8192 tokens, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: must be >= 0 and < chunk size %d, got %d", ErrInvalidChunkOverlap, c.ChunkSize, c.ChunkOverlap)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d", ErrInvalidWorkerConcurrency, c.WorkerConcurrency)
	}
	if c.WorkerRateLimit <= 0 || c.WorkerRateLimit > 1000 {
		return fmt.Errorf("%w: must be between 0 and 1000 calls/sec, got %g", ErrInvalidWorkerRateLimit, c.WorkerRateLimit)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidMaxAttempts, c.MaxAttempts)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q is not a recognized sslmode", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
