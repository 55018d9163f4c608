// Package main is the entrypoint for the claim dedupe engine.
//
// It wires configuration, database pool, embedding provider registry, and
// the claims HTTP API together, then serves until an interrupt or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/factengine/claimdedupe/internal/dedupe/coordinator"
	"github.com/factengine/claimdedupe/internal/dedupe/embeddings"
	"github.com/factengine/claimdedupe/internal/dedupe/httpapi"
	"github.com/factengine/claimdedupe/internal/dedupe/store/pg"
	"github.com/factengine/claimdedupe/internal/platform/config"
	"github.com/factengine/claimdedupe/internal/platform/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, cfg.DatabaseURL, cfg.PoolOptions(), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	claimStore, err := pg.Open(ctx, pool, cfg.EmbeddingsDimensions)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open claim store")
	}

	registry := embeddings.NewClient(ctx, embeddingClientConfig(cfg), &logger)

	coord := coordinator.New(claimStore, registry, cfg.Thresholds(), cfg.JoinThreshold())

	serverCfg := cfg.ServerCfg()
	apiServer := httpapi.New(coord, &logger, httpapi.Config{
		Addr:         portAddr(serverCfg.Port),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  serverCfg.IdleTimeout,
	})

	healthServer := observability.NewServer(pool, cfg.HealthPort, &logger)

	go func() {
		if err := healthServer.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		//nolint:contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api server shutdown error")
		}
	}()

	if err := apiServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// embeddingClientConfig adapts the service's flat config into the
// embeddings package's own Config shape. NewClient honors EMBEDDINGS_PROVIDER
// when set ("stub" forces the mock provider, "openai" restricts registration
// to OpenAI), and otherwise registers whichever providers have an API key
// configured, falling back to a mock provider when none do.
func embeddingClientConfig(cfg *config.Config) embeddings.Config {
	e := cfg.EmbeddingCfg()
	cb := cfg.CircuitBreakerCfg()

	return embeddings.Config{
		Provider:             e.Provider,
		OpenAIAPIKey:         e.OpenAIAPIKey,
		OpenAIModel:          e.OpenAIModel,
		OpenAIDimensions:     e.Dimensions,
		CohereAPIKey:         e.CohereAPIKey,
		CohereModel:          e.CohereModel,
		GoogleAPIKey:         e.GoogleAPIKey,
		GoogleModel:          e.GoogleModel,
		CircuitBreakerConfig: cb,
		TargetDimensions:     e.Dimensions,
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func portAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
