// Package config loads the dedupe engine's configuration from the
// environment (and an optional .env file), the way the teacher wires
// caarlos0/env against a flat struct.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/factengine/claimdedupe/internal/dedupe/classify"
)

// Config holds every environment-derived setting the dedupe engine needs.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	DatabaseURL         string        `env:"DATABASE_URL,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"1"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	EmbeddingsProvider         string        `env:"EMBEDDINGS_PROVIDER" envDefault:"openai"`
	EmbeddingsDimensions       int           `env:"EMBEDDINGS_DIMENSIONS" envDefault:"1536"`
	EmbeddingsCircuitThreshold int           `env:"EMBEDDINGS_CIRCUIT_THRESHOLD" envDefault:"5"`
	EmbeddingsCircuitReset     time.Duration `env:"EMBEDDINGS_CIRCUIT_RESET" envDefault:"1m"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-large"`

	CohereAPIKey string `env:"COHERE_API_KEY"`
	CohereModel  string `env:"COHERE_EMBEDDING_MODEL" envDefault:"embed-multilingual-v3.0"`

	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
	GoogleModel  string `env:"GOOGLE_EMBEDDING_MODEL" envDefault:"gemini-embedding-001"`

	DuplicateThreshold     float64 `env:"DUPLICATE_THRESHOLD" envDefault:"0.95"`
	NearDuplicateThreshold float64 `env:"NEAR_DUPLICATE_THRESHOLD" envDefault:"0.85"`
	DefaultTopK            int     `env:"DEFAULT_TOP_K" envDefault:"5"`

	Port         int           `env:"PORT" envDefault:"8081"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if present) then the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}

// Thresholds builds the classify.Thresholds the coordinator classifies
// with, enforcing T_near <= T_dup via NewThresholds' swap-on-reversed rule.
func (c *Config) Thresholds() classify.Thresholds {
	return classify.NewThresholds(c.DuplicateThreshold, c.NearDuplicateThreshold)
}

// JoinThreshold is the similarity cut-off the cluster assigner uses to
// decide whether a claim joins its best match's cluster. The coordinator
// fixes this to T_near, per spec: near-duplicates cluster together.
func (c *Config) JoinThreshold() float64 {
	return c.Thresholds().NearDuplicate
}
