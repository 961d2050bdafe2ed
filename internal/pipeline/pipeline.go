// Package pipeline orchestrates one full site analysis: fetch the homepage,
// chunk and embed its text, extract insights, and land the completed record
// in the cache. Completed analyses are archived and published best-effort.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/extract"
	"github.com/sells-group/insight-api/internal/index"
	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/monitoring"
	"github.com/sells-group/insight-api/internal/scrape"
	"github.com/sells-group/insight-api/internal/store"
)

// PageFetcher fetches one page of site content (*scrape.Chain satisfies it).
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.PageContent, error)
}

// Publisher pushes a completed analysis to an external destination.
type Publisher interface {
	Publish(ctx context.Context, snap *model.AnalysisSnapshot) error
}

// Service runs analyses end to end and serves them from the cache.
type Service struct {
	fetcher   PageFetcher
	splitter  *index.Splitter
	retriever *index.Retriever
	extractor *extract.Extractor
	analyses  *cache.Cache
	archive   store.Store
	publisher Publisher
	metrics   *monitoring.Collector
}

// New creates a Service. archive, publisher, and metrics may be nil; a nil
// archive or publisher disables that hook.
func New(
	fetcher PageFetcher,
	splitter *index.Splitter,
	retriever *index.Retriever,
	extractor *extract.Extractor,
	analyses *cache.Cache,
	archive store.Store,
	publisher Publisher,
	metrics *monitoring.Collector,
) *Service {
	return &Service{
		fetcher:   fetcher,
		splitter:  splitter,
		retriever: retriever,
		extractor: extractor,
		analyses:  analyses,
		archive:   archive,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Analyze returns the analysis record for rawURL, building it once on first
// request. Concurrent calls for the same URL share a single build. questions
// are answered alongside the fixed fields when a build runs; a cache hit
// returns the stored insights unchanged. refresh drops a completed entry so
// the build runs again; an in-flight build is never interrupted.
func (s *Service) Analyze(ctx context.Context, rawURL string, questions []string, refresh bool) (*model.AnalysisRecord, error) {
	key, err := cache.Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}

	if refresh {
		if s.analyses.Invalidate(key) {
			zap.L().Info("pipeline: cache entry dropped for refresh", zap.String("key", key))
		}
	} else if rec, ok := s.analyses.Get(key); ok && rec.Status == model.StatusReady {
		s.metrics.RecordCacheHit()
		zap.L().Debug("pipeline: cache hit", zap.String("key", key))
		return rec, nil
	}

	built := false
	rec, err := s.analyses.GetOrCreate(ctx, key, func(buildCtx context.Context) (*model.AnalysisRecord, error) {
		built = true
		r, buildErr := s.build(buildCtx, key, questions)
		s.metrics.RecordAnalysis(buildErr != nil)
		return r, buildErr
	})
	if err != nil {
		return nil, err
	}

	if !built {
		// Another caller's build, or a completed entry, satisfied this
		// request.
		s.metrics.RecordCacheHit()
		return rec, nil
	}

	s.afterReady(ctx, rec)
	return rec, nil
}

// build runs the fetch, chunk, embed, and extract stages for one key. The
// cache stamps status and timestamps on the returned record.
func (s *Service) build(ctx context.Context, key string, questions []string) (*model.AnalysisRecord, error) {
	log := zap.L().With(zap.String("key", key))
	log.Info("pipeline: analysis starting", zap.Int("questions", len(questions)))

	content, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch")
	}

	rec := &model.AnalysisRecord{
		Key: key,
		Pages: []model.Page{{
			SourceURL: key,
			Title:     content.Title,
			Text:      content.Text,
			Via:       content.Via,
			FetchedAt: time.Now().UTC(),
		}},
		Links: model.LinkIndex{},
	}
	for _, l := range content.Links {
		rec.Links.Add(l)
	}

	chunks := s.splitter.Split(content.Text, key)
	if len(chunks) == 0 {
		return nil, eris.Errorf("pipeline: no usable content at %s", key)
	}
	if err := s.retriever.EmbedChunks(ctx, chunks); err != nil {
		log.Warn("pipeline: chunks not embedded, retrieval is lexical for this analysis", zap.Error(err))
	}
	rec.Chunks = chunks

	insights, err := s.extractor.Run(ctx, rec, questions)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extract")
	}
	rec.Insights = insights

	log.Info("pipeline: analysis built",
		zap.Int("chunks", len(chunks)),
		zap.Int("links", rec.Links.Count()),
		zap.Int("insights", len(insights)),
	)
	return rec, nil
}

// afterReady archives and publishes a completed analysis. Both hooks are
// best-effort: a failure is logged and the analysis is still served.
func (s *Service) afterReady(ctx context.Context, rec *model.AnalysisRecord) {
	if s.archive == nil && s.publisher == nil {
		return
	}
	snap := rec.Snapshot()
	if s.archive != nil {
		if err := s.archive.SaveAnalysis(ctx, snap); err != nil {
			zap.L().Warn("pipeline: archive save failed",
				zap.String("key", rec.Key),
				zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snap); err != nil {
			zap.L().Warn("pipeline: publish failed",
				zap.String("key", rec.Key),
				zap.Error(err))
		}
	}
}
