package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/korpus/db"
	"github.com/koopa0/korpus/internal/chunking"
	"github.com/koopa0/korpus/internal/config"
	"github.com/koopa0/korpus/internal/embedding"
	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/ingest"
	"github.com/koopa0/korpus/internal/jobs"
	"github.com/koopa0/korpus/internal/knowledge"
	"github.com/koopa0/korpus/internal/log"
	"github.com/koopa0/korpus/internal/observability"
	"github.com/koopa0/korpus/internal/store"
)

// app holds the wired components the commands share. Construction order
// matters: migrations run before the pool opens, and the trace exporter
// registers with Genkit's TracerProvider before genkit.Init.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool
	g      *genkit.Genkit

	store       *store.Store
	queue       *jobs.Queue
	graph       *graph.Engine
	pipeline    *ingest.Pipeline
	service     *knowledge.Service
	collections *knowledge.Collections

	tracerShutdown func(context.Context) error
}

// setup loads configuration and wires the full pipeline.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracerShutdown := func(context.Context) error { return nil }
	if cfg.OTLPEndpoint != "" {
		tracerShutdown, err = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
			ServiceName: cfg.ServiceName,
		}, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize Genkit")
	}

	embedder := embedding.NewGenerator(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		config.EmbeddingDimension,
		logger.With("component", "embedding"),
	)

	st := store.New(pool, logger.With("component", "store"))
	queue := jobs.NewQueue(pool, cfg.MaxAttempts, cfg.RetryBaseDelay,
		logger.With("component", "queue"))
	engine := graph.NewEngine(pool, queue, logger.With("component", "graph"))
	chunker := chunking.NewChunker(chunking.NewTokenizer(),
		logger.With("component", "chunking"))
	collections := knowledge.NewCollections(pool, logger.With("component", "collections"))

	pipeline := ingest.NewPipeline(pool, chunker, embedder, engine,
		chunking.Params{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		logger.With("component", "ingest"))
	service := knowledge.NewService(st, embedder, engine, collections,
		logger.With("component", "knowledge"))

	return &app{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		g:              g,
		store:          st,
		queue:          queue,
		graph:          engine,
		pipeline:       pipeline,
		service:        service,
		collections:    collections,
		tracerShutdown: tracerShutdown,
	}, nil
}

// close releases resources in reverse construction order, flushing
// pending trace spans before the pool goes away.
func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
	a.pool.Close()
}

// extractionModel returns the provider-qualified model name for Genkit.
// Config accepts both bare ("gemini-2.5-flash") and qualified names.
func (a *app) extractionModel() string {
	if strings.Contains(a.cfg.ModelName, "/") {
		return a.cfg.ModelName
	}
	return "googleai/" + a.cfg.ModelName
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Fail fast when the database is unreachable.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
