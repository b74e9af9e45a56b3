package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/nutrichat/nutrichat/db"
	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/index"
	"github.com/nutrichat/nutrichat/internal/intent"
	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/retrieval"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
	"github.com/nutrichat/nutrichat/internal/tools"
)

// modelRequestsPerSecond is the proactive rate limit on model calls.
const modelRequestsPerSecond = 2

// Setup creates and initializes the application. Call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	pool, err := provideDBPool(runCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, model, err := provideGenkit(runCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Model = model

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Profiles = profile.NewStore(pool, logger)
	a.Sessions = session.NewStore(pool, logger)
	a.Results = labs.NewStore(pool, logger)
	a.Index = index.NewStore(pool, logger)
	a.State = state.NewStore(pool, logger)

	a.Runs = pipeline.NewRunStore(pool)
	a.Runner = pipeline.NewRunner(g, model, embedder, a.Runs, a.Index, a.Results, logger)
	if err := a.Runner.Start(runCtx, cfg.PipelineWorkers); err != nil {
		return nil, fmt.Errorf("starting pipeline: %w", err)
	}

	a.Retrieval = retrieval.NewService(embedder, a.Index, a.Results, logger)

	a.Tools = tools.NewExecutor(a.Profiles, a.Runner, logger)
	toolRefs := tools.Register(g, a.Tools)

	a.Chat, err = chat.New(chat.Config{
		Genkit:      g,
		Model:       model,
		Classifier:  intent.NewClassifier(),
		Profiles:    a.Profiles,
		Sessions:    a.Sessions,
		Retrieval:   a.Retrieval,
		Results:     a.Results,
		ToolRefs:    toolRefs,
		Logger:      logger,
		MaxTurns:    cfg.MaxTurns,
		RateLimiter: rate.NewLimiter(rate.Limit(modelRequestsPerSecond), modelRequestsPerSecond),
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return a, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes genkit for the configured provider and resolves
// the chat model. Ollama has no auto-discovery, so its model is registered
// explicitly.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Model, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		model := plugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", "ollama", "model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, model, nil

	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with openai provider")
		}
		model := genkit.LookupModel(g, "openai/"+cfg.ModelName)
		if model == nil {
			return nil, nil, fmt.Errorf("model %q not found for openai provider", cfg.ModelName)
		}
		logger.Info("initialized genkit", "provider", "openai", "model", cfg.ModelName)
		return g, model, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		model := genkit.LookupModel(g, "googleai/"+cfg.ModelName)
		if model == nil {
			return nil, nil, fmt.Errorf("model %q not found for gemini provider", cfg.ModelName)
		}
		logger.Info("initialized genkit", "provider", "gemini", "model", cfg.ModelName)
		return g, model, nil
	}
}

// provideEmbedder resolves the embedder registered by the provider plugin,
// wrapped so its output always matches the index's vector width.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	var embedder ai.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		embedder = ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
	if embedder == nil {
		return nil
	}
	return newDimensionedEmbedder(embedder, cfg.Provider)
}
