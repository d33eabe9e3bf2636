// Package orchestrator builds the collaborators of a respin session from
// configuration and owns their lifetimes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yates-Labs/respin/internal/config"
	"github.com/Yates-Labs/respin/internal/generation"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/metrics"
	"github.com/Yates-Labs/respin/internal/prompts"
	"github.com/Yates-Labs/respin/internal/scrape"
	"github.com/Yates-Labs/respin/internal/session"
	"github.com/Yates-Labs/respin/internal/speech"
	"github.com/Yates-Labs/respin/internal/store"
	"go.uber.org/zap"
)

// Generation settings per role.
const (
	rewriteMaxTokens   = 4000
	reviewMaxTokens    = 1000
	summaryMaxTokens   = 500
	rewriteTemperature = 0.7
)

// Runtime holds the storage side of the application: the revision ledger
// over its vector store and the prompt score store. Model clients are built
// on demand by Session so commands that only read history need no API keys.
type Runtime struct {
	config  config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store    store.VectorStore
	ledger   *ledger.Ledger
	prompts  *prompts.Store
	selector *prompts.Selector
}

// Open connects the configured store and loads the prompt catalog. A store
// that cannot be opened is an error; the caller should not start a session.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vs, err := NewVectorStore(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	ps, err := NewPromptStore(cfg, logger)
	if err != nil {
		vs.Close()
		return nil, err
	}

	threshold := ps.Bounds().ExcludeThreshold
	selector := prompts.NewSelector(threshold, nil)
	if cfg.Prompts.Seed != 0 {
		selector = prompts.NewSeededSelector(threshold, cfg.Prompts.Seed)
	}

	logger.Info("runtime opened",
		zap.String("backend", cfg.Store.Backend),
		zap.String("embedder", embedder.GetModel()),
		zap.String("prompts", cfg.Prompts.File))

	return &Runtime{
		config:   cfg,
		logger:   logger,
		metrics:  metrics.New(),
		store:    vs,
		ledger:   ledger.New(vs, logger),
		prompts:  ps,
		selector: selector,
	}, nil
}

// NewPromptStore opens and loads the prompt score file.
func NewPromptStore(cfg config.Config, logger *zap.Logger) (*prompts.Store, error) {
	ps := prompts.NewStore(cfg.Prompts.File, prompts.Bounds{
		MinScore:         cfg.Prompts.MinScore,
		MaxScore:         cfg.Prompts.MaxScore,
		ExcludeThreshold: cfg.Prompts.ExcludeThreshold,
	}, logger)
	if _, err := ps.Load(); err != nil {
		return nil, err
	}
	return ps, nil
}

// NewFetcher returns a scraper configured from cfg.
func NewFetcher(cfg config.Config, logger *zap.Logger) *scrape.RodFetcher {
	return scrape.NewRodFetcher(scrape.Config{
		BaseURL:    cfg.Book.BaseURL,
		Headless:   cfg.Scrape.Headless,
		Timeout:    cfg.Scrape.Timeout,
		OutputDir:  cfg.Scrape.OutputDir,
		BrowserBin: cfg.Scrape.BrowserBin,
	}, logger)
}

// NewEmbedder returns the embedder named by cfg.Store.Embedder.
func NewEmbedder(ctx context.Context, cfg config.Config) (store.Embedder, error) {
	switch cfg.Store.Embedder {
	case "openai":
		return store.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Store.EmbeddingModel, cfg.Store.Dimension)
	case "gemini":
		return store.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.Store.EmbeddingModel, cfg.Store.Dimension)
	case "hash", "":
		return store.NewHashEmbedder(cfg.Store.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", config.ErrInvalidConfig, cfg.Store.Embedder)
	}
}

// NewVectorStore opens the backend named by cfg.Store.Backend.
func NewVectorStore(ctx context.Context, cfg config.Config, embedder store.Embedder, logger *zap.Logger) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "milvus":
		mc := store.DefaultMilvusConfig()
		mc.Address = cfg.Store.MilvusAddress
		if cfg.Store.Collection != "" {
			mc.CollectionName = cfg.Store.Collection
		}
		mc.Dimension = embedder.GetDimension()
		return store.NewMilvusStore(ctx, mc, embedder, logger)
	case "badger", "":
		bc := store.DefaultBadgerConfig()
		bc.Path = cfg.Store.Path
		return store.NewBadgerStore(bc, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store.Backend)
	}
}

// Ledger returns the revision ledger.
func (r *Runtime) Ledger() *ledger.Ledger { return r.ledger }

// Prompts returns the prompt score store.
func (r *Runtime) Prompts() *prompts.Store { return r.prompts }

// Metrics returns the runtime's collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Session builds the model clients and returns a controller wired to the
// runtime's ledger and prompt store. Speech is optional and left out when it
// cannot be configured.
func (r *Runtime) Session(ctx context.Context, operator session.Operator, editor session.Editor) (*session.Controller, error) {
	models := r.config.Models

	rewriteLLM, err := r.newLLM(ctx, models.Rewrite, rewriteTemperature, rewriteMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create rewrite model: %w", err)
	}
	reviewLLM, err := r.newLLM(ctx, models.Review, 0, reviewMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create review model: %w", err)
	}
	summaryLLM, err := r.newLLM(ctx, models.Summarize, 0, summaryMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary model: %w", err)
	}
	instructionLLM, err := r.newLLM(ctx, models.Instruction, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create instruction model: %w", err)
	}

	components := session.Components{
		Ledger:     r.ledger,
		Prompts:    r.prompts,
		Selector:   r.selector,
		Fetcher:    NewFetcher(r.config, r.logger),
		Rewriter:   generation.NewRewriter(rewriteLLM),
		Reviewer:   generation.NewReviewer(reviewLLM),
		Summarizer: generation.NewSummarizer(summaryLLM),
		Generator:  generation.NewInstructionGenerator(instructionLLM, r.logger),
		Operator:   operator,
		Editor:     editor,
		Metrics:    r.metrics,
	}
	if speaker, err := r.newSpeaker(); err != nil {
		r.logger.Warn("speech disabled", zap.Error(err))
	} else {
		components.Speaker = speaker
	}

	return session.New(components, session.Settings{
		ExplorationRate: r.config.Prompts.ExplorationRate,
		LearningRate:    r.config.Prompts.LearningRate,
	}, r.logger)
}

func (r *Runtime) newLLM(ctx context.Context, role config.RoleConfig, temperature float32, maxTokens int) (generation.LLM, error) {
	apiKey := r.config.OpenAIAPIKey
	if role.Provider == generation.ProviderGemini {
		apiKey = r.config.GeminiAPIKey
	}
	return generation.NewLLM(ctx, generation.LLMConfig{
		Provider:    role.Provider,
		Model:       role.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		APIKey:      apiKey,
	})
}

func (r *Runtime) newSpeaker() (*speech.Speaker, error) {
	synth, err := speech.NewOpenAISynthesizer(r.config.OpenAIAPIKey, r.config.Speech.Model, r.config.Speech.Voice)
	if err != nil {
		return nil, err
	}
	player, err := speech.NewCommandPlayer(r.config.Speech.Player)
	if err != nil {
		return nil, err
	}
	return speech.NewSpeaker(synth, player, r.config.Speech.Dir, r.logger), nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}
