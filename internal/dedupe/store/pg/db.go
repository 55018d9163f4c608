// Package pg provides the PostgreSQL-backed ClaimStore implementations.
//
// Two backends share one connection pool and one schema: a native
// pgvector-backed store (production) and a JSON-serialized fallback used
// when the vector extension is unavailable (tests, minimal deployments).
// Open inspects the connected database's extensions once at startup and
// returns the matching store.ClaimStore implementation.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/factengine/claimdedupe/internal/dedupe/store"
	"github.com/factengine/claimdedupe/migrations"
)

const (
	defaultMaxConns          = 10
	defaultMinConns          = 1
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultMaxConnLifetime   = time.Hour
	defaultHealthCheckPeriod = time.Minute

	maxConnectionRetries = 5
	connectionRetrySleep = 2 * time.Second

	migrationLockID = 4200
)

// PoolOptions configures the database connection pool.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions returns sensible default pool configuration.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          defaultMaxConns,
		MinConns:          defaultMinConns,
		MaxConnIdleTime:   defaultMaxConnIdleTime,
		MaxConnLifetime:   defaultMaxConnLifetime,
		HealthCheckPeriod: defaultHealthCheckPeriod,
	}
}

// Pool wraps the shared pgx connection pool used by both backends.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// Connect opens a connection pool with retries and applies the given options.
func Connect(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	applyPoolOptions(config, opts)

	return connectWithRetries(ctx, config, logger)
}

func applyPoolOptions(config *pgxpool.Config, opts PoolOptions) {
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}

	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}

	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}

	if opts.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = opts.HealthCheckPeriod
	}
}

func connectWithRetries(ctx context.Context, config *pgxpool.Config, logger *zerolog.Logger) (*Pool, error) {
	var (
		pool *pgxpool.Pool
		err  error
	)

	for i := 0; i < maxConnectionRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &Pool{pool: pool, logger: logger}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		time.Sleep(connectionRetrySleep)
	}

	return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
}

// Close closes the underlying connection pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Ping checks connectivity, satisfying observability.Pinger.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// Migrate runs embedded goose migrations, guarded by a Postgres advisory
// lock so that only one instance migrates at a time.
func (p *Pool) Migrate(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	defer func() {
		//nolint:errcheck // advisory unlock in defer is best-effort
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	dbSQL := stdlib.OpenDB(*p.pool.Config().ConnConfig)
	defer func() { _ = dbSQL.Close() }()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: p.logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(dbSQL, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Open detects whether the pgvector extension is installed and returns the
// matching store.ClaimStore implementation: vectorStore when available,
// fallbackStore (JSON-encoded embeddings, in-process cosine) otherwise.
func Open(ctx context.Context, p *Pool, dimensions int) (store.ClaimStore, error) {
	native, err := hasVectorExtension(ctx, p.pool)
	if err != nil {
		return nil, fmt.Errorf("detect vector extension: %w", err)
	}

	if native {
		return newVectorStore(p.pool, dimensions), nil
	}

	return newFallbackStore(p.pool, dimensions), nil
}

func hasVectorExtension(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool

	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query pg_extension: %w", err)
	}

	return exists, nil
}
