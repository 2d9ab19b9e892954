package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/config"
	"github.com/kailas-cloud/topoagent/internal/db"
	dbPostgres "github.com/kailas-cloud/topoagent/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/topoagent/internal/db/redis"
	"github.com/kailas-cloud/topoagent/internal/domain"
	logpkg "github.com/kailas-cloud/topoagent/internal/logger"
	"github.com/kailas-cloud/topoagent/internal/metrics"
	"github.com/kailas-cloud/topoagent/internal/repository/comment"
	"github.com/kailas-cloud/topoagent/internal/repository/embcache"
	compatEmb "github.com/kailas-cloud/topoagent/internal/transport/compat"
	openaiEmb "github.com/kailas-cloud/topoagent/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/topoagent/internal/usecase/embedding"
	"github.com/kailas-cloud/topoagent/internal/usecase/retrieval"
)

// embedder is the outermost decorator: it serves retrieval and health checks.
type embedder interface {
	domain.Embedder
	domain.HealthChecker
}

// app is the composition root shared by all subcommands.
type app struct {
	env      string
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	cache    *dbRedis.Store
	embedder embedder
	gateway  *comment.Repo
	node     *retrieval.Node
}

// newApp builds the store, embedder chain, gateway and retrieval node.
// reg receives every metric family; the serve command passes the default registry.
func newApp(ctx context.Context, flags *globalFlags, reg prometheus.Registerer) (*app, error) {
	env, cfg, err := flags.load()
	if err != nil {
		return nil, err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}

	a.store, err = buildStore(cfg.Database)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create database store: %w", err)
	}

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := a.store.WaitForReady(ctx, readiness); err != nil {
		a.close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("source", a.store.Source()),
	)

	if cfg.Embedding.Cache.Enabled {
		a.cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Embedding.Cache.Addrs,
			Password: cfg.Embedding.Cache.Password,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
	}

	a.embedder = buildEmbedder(cfg.Embedding, a.cache, metrics.NewEmbedding(reg), logger)
	logger.Info("Embedder created",
		zap.String("kind", cfg.Embedding.Kind),
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", a.cache != nil),
	)

	a.gateway = comment.New(a.store).WithDimensions(cfg.Embedding.Dimensions)

	policy, err := policyFromConfig(cfg.Retrieval)
	if err != nil {
		a.close()
		return nil, err
	}
	a.node = retrieval.New(a.embedder, a.gateway,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithPolicy(policy),
	)
	return a, nil
}

// baseContext carries the app logger so lower layers log through logger.FromContext.
func (a *app) baseContext(ctx context.Context) context.Context {
	return logpkg.ContextWithLogger(ctx, a.logger)
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildStore selects the comment store backend by driver.
func buildStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return dbPostgres.NewStore(dbPostgres.Config{
			DSN:          cfg.DSN,
			Table:        cfg.Table,
			Metric:       cfg.Metric,
			EFSearch:     cfg.EFSearch,
			MaxOpenConns: cfg.MaxOpenConns,
		})
	case config.DriverValkey, config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Addrs,
			Password:  cfg.Password,
			IndexName: cfg.Index,
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: provider -> cache -> breaker/logging -> instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	cache *dbRedis.Store,
	m *metrics.Embedding,
	logger *zap.Logger,
) embedder {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	var base embedder
	switch cfg.Kind {
	case config.KindOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Timeout:    timeout,
			Metrics:    m,
		})
	default:
		base = compatEmb.NewEmbedder(&compatEmb.Config{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  timeout,
			Provider: cfg.Provider,
			Metrics:  m,
		})
	}

	chain := base
	if cache != nil {
		chain = embcache.New(base, cache, cfg.Model,
			time.Duration(cfg.Cache.TTLSec)*time.Second, m.CacheTotal())
	}

	// Pass a nil interface, not a typed nil, when the breaker is disabled.
	var breaker embeddinguc.Breaker
	if cfg.Breaker.Enabled {
		breaker = embeddinguc.NewBreaker(cfg.Provider, uint32(cfg.Breaker.MaxFailures),
			time.Duration(cfg.Breaker.OpenTimeoutSec)*time.Second,
			func(from, to string) {
				logger.Warn("Embedding circuit breaker state changed",
					zap.String("provider", cfg.Provider),
					zap.String("from", from),
					zap.String("to", to),
				)
			})
	}
	chain = embeddinguc.NewInstrumentedEmbedder(chain, cfg.Provider, cfg.Model, breaker)

	// Instruction prefix (outermost, so the cache key includes it)
	if cfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(chain, cfg.QueryInstruction)
	}
	return chain
}

func policyFromConfig(cfg config.RetrievalConfig) (retrieval.Policy, error) {
	action, err := retrieval.ParseAction(cfg.OnStoreError)
	if err != nil {
		return nil, fmt.Errorf("retrieval.on_store_error: %w", err)
	}
	return retrieval.DefaultPolicy().With(domain.KindStore, action), nil
}
