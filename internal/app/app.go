// Package app wires configuration into a running application: storage,
// embedding provider, generation model, and the domain services. Setup
// returns an App with embedded cleanup; call Close to release.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/rgknow/edurag/db"
	"github.com/rgknow/edurag/internal/config"
	"github.com/rgknow/edurag/internal/embedding"
	"github.com/rgknow/edurag/internal/guardrail"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/learnpath"
	"github.com/rgknow/edurag/internal/log"
	"github.com/rgknow/edurag/internal/retrieval"
	"github.com/rgknow/edurag/internal/tutor"
	"github.com/rgknow/edurag/internal/validation"
)

// embedderDimension is the vector width for remote embedding models. The
// postgres schema declares VECTOR(768), and the default models of every
// provider (text-embedding-004, nomic-embed-text) emit 768 dimensions.
const embedderDimension = 768

// Proactive rate limits for remote model calls, below typical free-tier
// quotas so bursts degrade to waiting instead of 429 retries.
var (
	embedLimit    = rate.NewLimiter(rate.Every(time.Second/10), 10)
	generateLimit = rate.NewLimiter(rate.Every(time.Second/2), 2)
)

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Knowledge   *knowledge.Service
	Manager     *tutor.Manager
	Responder   *tutor.Responder
	Validator   *validation.Validator
	Paths       *learnpath.Engine
	Recommender *learnpath.Recommender

	pool  *pgxpool.Pool // nil in memory mode
	redis *redis.Client // nil when caching is disabled
}

// Setup builds the application from configuration. On error everything
// already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	var (
		store    knowledge.Store
		index    retrieval.Index
		sessions tutor.Store
		reviews  validation.Store
	)
	switch cfg.StorageMode {
	case config.StorageMemory:
		store = knowledge.NewMemoryStore()
		index = retrieval.NewMemoryIndex()
		sessions = tutor.NewMemoryStore()
		reviews = validation.NewMemoryStore()
		logger.Info("storage: in-memory")

	case config.StoragePostgres:
		pool, err := providePool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		store = knowledge.NewPostgresStore(pool)
		index = retrieval.NewPostgresIndex(pool)
		sessions = tutor.NewPostgresStore(pool)
		reviews = validation.NewPostgresStore(pool)
		logger.Info("storage: postgres", "host", cfg.PostgresHost, "db", cfg.PostgresDBName)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStorageMode, cfg.StorageMode)
	}

	registry, generator, err := provideModels(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		registry = cacheRegistry(registry, a.redis, logger)
		logger.Info("embedding cache enabled", "addr", cfg.RedisAddr)
	}

	a.Knowledge = knowledge.NewService(store, index, registry, cfg.EmbedderModel,
		cfg.ChunkTargetSize, cfg.ChunkOverlap, logger.With("component", "knowledge"))

	a.Manager = tutor.NewManager(sessions, a.Knowledge, cfg.SessionIdleTimeout,
		logger.With("component", "tutor"))
	a.Manager.StartSweeper()

	a.Responder = tutor.NewResponder(sessions, a.Knowledge, generator,
		guardrail.NewPatternGate(), logger.With("component", "responder"),
		tutor.WithTopK(cfg.RetrievalTopK),
		tutor.WithHistoryWindow(cfg.HistoryWindow))

	a.Validator = validation.NewValidator(reviews, store, index,
		logger.With("component", "validation"))

	a.Paths = learnpath.NewEngine(store, logger.With("component", "learnpath"))
	a.Recommender = learnpath.NewRecommender(a.Knowledge, logger.With("component", "learnpath"))

	return a, nil
}

// Ready reports backing-store health; used by the readiness probe.
func (a *App) Ready(ctx context.Context) error {
	if a.pool != nil {
		return a.pool.Ping(ctx)
	}
	return nil
}

// Close releases everything Setup acquired. Safe on a partially built App.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// providePool migrates the schema and opens the pgx pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideModels builds the embedder registry and the response generator for
// the configured provider. The local provider needs no network or API key;
// the others initialize Genkit with the matching plugin.
func provideModels(ctx context.Context, cfg *config.Config, logger log.Logger) (*embedding.Registry, tutor.Generator, error) {
	registry := embedding.NewRegistry(logger)

	if cfg.Provider == config.ProviderLocal {
		registry.Register(embedding.NewLocalEmbedder(cfg.EmbedderModel, embedderDimension))
		logger.Info("local provider: deterministic embedder and template generator",
			"embedder", cfg.EmbedderModel)
		return registry, tutor.TemplateGenerator{}, nil
	}

	var (
		g        *genkit.Genkit
		embedder ai.Embedder
	)
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	case config.ProviderGemini:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	registry.Register(embedding.NewGenkitEmbedder(cfg.EmbedderModel, embedderDimension, embedder, embedLimit))
	return registry, tutor.NewGenkitGenerator(g, cfg.ModelName, generateLimit), nil
}

// cacheRegistry rebuilds the registry with every embedder wrapped in the
// Redis read-through cache.
func cacheRegistry(registry *embedding.Registry, client *redis.Client, logger log.Logger) *embedding.Registry {
	cached := embedding.NewRegistry(logger)
	for _, name := range registry.Models() {
		e, err := registry.Lookup(name)
		if err != nil {
			continue
		}
		cached.Register(embedding.NewCachedEmbedder(e, client, logger))
	}
	return cached
}
