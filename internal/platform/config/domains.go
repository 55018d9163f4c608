package config

import (
	"time"

	"github.com/factengine/claimdedupe/internal/dedupe/embeddings"
	"github.com/factengine/claimdedupe/internal/dedupe/store/pg"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	DatabaseURL       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// DatabaseCfg returns the database configuration extracted from Config.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		DatabaseURL:       c.DatabaseURL,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// PoolOptions adapts DatabaseCfg to the pg package's pool configuration.
func (c *Config) PoolOptions() pg.PoolOptions {
	db := c.DatabaseCfg()

	return pg.PoolOptions{
		MaxConns:          db.MaxConnections,
		MinConns:          db.MinConnections,
		MaxConnIdleTime:   db.MaxConnIdleTime,
		MaxConnLifetime:   db.MaxConnLifetime,
		HealthCheckPeriod: db.HealthCheckPeriod,
	}
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string
	Dimensions       int
	CircuitThreshold int
	CircuitReset     time.Duration
	OpenAIAPIKey     string
	OpenAIModel      string
	CohereAPIKey     string
	CohereModel      string
	GoogleAPIKey     string
	GoogleModel      string
}

// EmbeddingCfg returns the embedding provider configuration.
func (c *Config) EmbeddingCfg() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:         c.EmbeddingsProvider,
		Dimensions:       c.EmbeddingsDimensions,
		CircuitThreshold: c.EmbeddingsCircuitThreshold,
		CircuitReset:     c.EmbeddingsCircuitReset,
		OpenAIAPIKey:     c.OpenAIAPIKey,
		OpenAIModel:      c.OpenAIModel,
		CohereAPIKey:     c.CohereAPIKey,
		CohereModel:      c.CohereModel,
		GoogleAPIKey:     c.GoogleAPIKey,
		GoogleModel:      c.GoogleModel,
	}
}

// CircuitBreakerCfg adapts EmbeddingCfg to the embeddings package's circuit
// breaker configuration.
func (c *Config) CircuitBreakerCfg() embeddings.CircuitBreakerConfig {
	e := c.EmbeddingCfg()

	return embeddings.CircuitBreakerConfig{
		Threshold:  e.CircuitThreshold,
		ResetAfter: e.CircuitReset,
	}
}

// ServerConfig holds the HTTP server's network settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ServerCfg returns the HTTP server configuration.
func (c *Config) ServerCfg() ServerConfig {
	return ServerConfig{
		Port:         c.Port,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		IdleTimeout:  c.IdleTimeout,
	}
}
