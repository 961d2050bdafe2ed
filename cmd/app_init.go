package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/chat"
	"github.com/sells-group/insight-api/internal/extract"
	"github.com/sells-group/insight-api/internal/index"
	"github.com/sells-group/insight-api/internal/monitoring"
	"github.com/sells-group/insight-api/internal/pipeline"
	"github.com/sells-group/insight-api/internal/publish"
	"github.com/sells-group/insight-api/internal/scrape"
	"github.com/sells-group/insight-api/internal/store"
	anthropicpkg "github.com/sells-group/insight-api/pkg/anthropic"
	"github.com/sells-group/insight-api/pkg/deepinfra"
	"github.com/sells-group/insight-api/pkg/jina"
	"github.com/sells-group/insight-api/pkg/notion"
)

// warmStartLimit caps how many archived analyses are seeded into the cache
// on boot.
const warmStartLimit = 500

// appEnv holds the initialized clients and engines shared by the serve and
// analyze commands.
type appEnv struct {
	Analyses *cache.Cache
	Pipeline *pipeline.Service
	Engine   *chat.Engine
	Metrics  *monitoring.Collector
	Archive  store.Store // nil when no archive backend is configured
}

// Close releases resources held by the environment.
func (ae *appEnv) Close() {
	if ae.Archive != nil {
		_ = ae.Archive.Close()
	}
}

// initApp validates the config for the given mode, builds the API clients,
// opens the archive, and wires the analysis pipeline and chat engine.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	metrics := monitoring.NewCollector()

	llm := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithModel(cfg.Anthropic.Model),
		anthropicpkg.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		anthropicpkg.WithUsageHook(func(u anthropicpkg.TokenUsage) {
			metrics.RecordUsage(cfg.Anthropic.Model, u)
		}),
	)

	// Embeddings are optional; without them retrieval scores lexically.
	var embedder index.Embedder
	if cfg.DeepInfra.Key != "" {
		embedder = deepinfra.NewClient(cfg.DeepInfra.Key,
			deepinfra.WithBaseURL(cfg.DeepInfra.BaseURL),
			deepinfra.WithModel(cfg.DeepInfra.Model),
			deepinfra.WithBatchSize(cfg.DeepInfra.BatchSize),
		)
		zap.L().Info("semantic retrieval enabled", zap.String("model", cfg.DeepInfra.Model))
	} else {
		zap.L().Debug("INSIGHT_DEEPINFRA_KEY not set, retrieval scores lexically")
	}
	retriever := index.NewRetriever(embedder)
	splitter := index.NewSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)

	// Fetch chain: rendering reader first when configured, static HTML as
	// the fallback.
	timeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
	fetchers := make([]scrape.Fetcher, 0, 2)
	if cfg.Scrape.ReaderKey != "" {
		readerClient := jina.NewClient(cfg.Scrape.ReaderKey,
			jina.WithBaseURL(cfg.Scrape.ReaderBaseURL),
			jina.WithTimeout(timeout),
		)
		fetchers = append(fetchers, scrape.NewReaderFetcher(readerClient))
		zap.L().Info("reader fetcher enabled")
	} else {
		zap.L().Debug("INSIGHT_SCRAPE_READER_KEY not set, fetching static HTML only")
	}
	fetchers = append(fetchers, scrape.NewStaticFetcher(timeout, int64(cfg.Scrape.MaxBodyKB)*1024))
	chain := scrape.NewChain(scrape.NewPathFilter(cfg.Scrape.Exclude), fetchers...)

	extractor, err := extract.NewExtractor(llm, retriever, metrics, extract.Config{
		Workers:      cfg.Extract.Workers,
		TopK:         cfg.Index.TopK,
		TaskTimeout:  time.Duration(cfg.Extract.TaskTimeoutSecs) * time.Second,
		MaxQuestions: cfg.Extract.MaxQuestions,
	})
	if err != nil {
		return nil, err
	}

	analyses := cache.New(cache.WithBuildTimeout(cfg.Cache.BuildTimeout()))

	engine, err := chat.NewEngine(llm, retriever, splitter, chain, analyses, metrics, chat.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     int64(cfg.Anthropic.MaxTokens),
		TopK:          cfg.Index.TopK,
		HistoryWindow: cfg.Chat.HistoryWindow,
	})
	if err != nil {
		return nil, err
	}

	archive, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open archive")
	}
	if archive != nil {
		if err := archive.Migrate(ctx); err != nil {
			_ = archive.Close()
			return nil, eris.Wrap(err, "migrate archive")
		}
		if cfg.Store.WarmStart {
			if _, err := store.WarmStart(ctx, archive, analyses, warmStartLimit); err != nil {
				zap.L().Warn("cache warm start failed", zap.Error(err))
			}
		}
	}

	var publisher pipeline.Publisher
	if cfg.Notion.Enabled() {
		publisher = publish.NewNotion(notion.NewClient(cfg.Notion.Token), cfg.Notion.DatabaseID)
		zap.L().Info("notion publishing enabled")
	}

	pipe := pipeline.New(chain, splitter, retriever, extractor, analyses, archive, publisher, metrics)

	return &appEnv{
		Analyses: analyses,
		Pipeline: pipe,
		Engine:   engine,
		Metrics:  metrics,
		Archive:  archive,
	}, nil
}
