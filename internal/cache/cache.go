// Package cache holds analysis records keyed by canonical URL, deduplicating
// concurrent builds for the same key and optionally evicting idle entries.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/model"
)

// BuildFunc produces the analysis for one URL. It runs in its own goroutine
// detached from any single caller's context.
type BuildFunc func(ctx context.Context) (*model.AnalysisRecord, error)

// Stats summarizes the cache contents.
type Stats struct {
	Entries int `json:"entries"`
	Ready   int `json:"ready"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Chunks  int `json:"chunks"`
}

// entry is one key's slot. done closes when the build finishes; after that
// the record is mutated only by copy-and-swap under mu, so snapshots handed
// to callers stay internally consistent.
type entry struct {
	mu     sync.Mutex
	record *model.AnalysisRecord
	err    error
	done   chan struct{}
}

func (e *entry) completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *entry) failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err != nil
}

// snapshot returns a shallow copy of the record, bumping LastAccessedAt when
// asked. The copy shares backing arrays with the entry, which is safe because
// appends swap in fresh slices instead of growing the shared ones.
func (e *entry) snapshot(now time.Time, touch bool) *model.AnalysisRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if touch {
		e.record.LastAccessedAt = now
	}
	cp := *e.record
	return &cp
}

// Cache is the in-process analysis store.
type Cache struct {
	mu           sync.Mutex
	entries      map[string]*entry
	buildTimeout time.Duration

	now func() time.Time
}

// Option configures the cache.
type Option func(*Cache)

// WithBuildTimeout bounds one build; zero means no bound.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.buildTimeout = d
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the record for the URL, building it once if absent.
// Concurrent callers for the same key share one build. A FAILED key re-enters
// the build path. The caller's ctx bounds only its wait: if it expires the
// build keeps running and lands in the cache for the next caller.
func (c *Cache) GetOrCreate(ctx context.Context, rawURL string, build BuildFunc) (*model.AnalysisRecord, error) {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || (e.completed() && e.failed()) {
		e = &entry{
			record: &model.AnalysisRecord{
				Key:            key,
				Status:         model.StatusPending,
				CreatedAt:      c.now(),
				LastAccessedAt: c.now(),
			},
			done: make(chan struct{}),
		}
		c.entries[key] = e
		go c.runBuild(e, key, build)
	}
	c.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "cache: wait for analysis")
	}

	e.mu.Lock()
	buildErr := e.err
	e.mu.Unlock()
	if buildErr != nil {
		return nil, buildErr
	}
	return e.snapshot(c.now(), true), nil
}

func (c *Cache) runBuild(e *entry, key string, build BuildFunc) {
	ctx := context.Background()
	if c.buildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.buildTimeout)
		defer cancel()
	}

	start := c.now()
	rec, err := build(ctx)
	took := c.now().Sub(start)

	e.mu.Lock()
	switch {
	case err != nil:
		e.record.Status = model.StatusFailed
		e.record.FailureCause = err.Error()
		e.record.LastAccessedAt = c.now()
		e.err = err
	case rec == nil:
		e.err = eris.New("cache: build returned no record")
		e.record.Status = model.StatusFailed
		e.record.FailureCause = e.err.Error()
		e.record.LastAccessedAt = c.now()
	default:
		rec.Key = key
		rec.Status = model.StatusReady
		rec.CreatedAt = e.record.CreatedAt
		rec.LastAccessedAt = c.now()
		e.record = rec
	}
	e.mu.Unlock()
	close(e.done)

	if err != nil {
		zap.L().Warn("cache: build failed",
			zap.String("key", key),
			zap.Duration("took", took),
			zap.Error(err))
		return
	}
	zap.L().Info("cache: analysis ready",
		zap.String("key", key),
		zap.Duration("took", took))
}

// Get returns a snapshot of the record for the URL, whatever its status.
// READY hits bump LastAccessedAt.
func (c *Cache) Get(rawURL string) (*model.AnalysisRecord, bool) {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	snap := e.snapshot(c.now(), e.completed() && !e.failed())
	return snap, true
}

// AppendPage merges an augmentation page into a READY record: page text,
// links, and chunks land in one swap so concurrent snapshots see either the
// old or the new state. Chunk Seq values are rebased to continue the record's
// sequence. A sub-URL already present is a no-op and returns false.
func (c *Cache) AppendPage(rawURL, subURL, text string, links []model.Link, chunks []model.Chunk) (bool, error) {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return false, eris.Errorf("cache: no analysis for %s", key)
	}
	if !e.completed() {
		return false, eris.Errorf("cache: analysis still building for %s", key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return false, eris.Errorf("cache: analysis failed for %s", key)
	}
	rec := e.record
	if rec.HasPage(subURL) {
		return false, nil
	}

	pages := make([]model.Page, 0, len(rec.Pages)+1)
	pages = append(pages, rec.Pages...)
	pages = append(pages, model.Page{
		SourceURL: subURL,
		Text:      text,
		FetchedAt: c.now(),
	})

	next := len(rec.Chunks)
	merged := make([]model.Chunk, 0, len(rec.Chunks)+len(chunks))
	merged = append(merged, rec.Chunks...)
	for i, ch := range chunks {
		ch.SourceURL = subURL
		ch.Seq = next + i
		merged = append(merged, ch)
	}

	linkIndex := model.LinkIndex{}
	linkIndex.Merge(rec.Links)
	for _, l := range links {
		linkIndex.Add(l)
	}

	cp := *rec
	cp.Pages = pages
	cp.Chunks = merged
	cp.Links = linkIndex
	cp.LastAccessedAt = c.now()
	e.record = &cp

	zap.L().Info("cache: page appended",
		zap.String("key", key),
		zap.String("sub_url", subURL),
		zap.Int("new_chunks", len(chunks)))
	return true, nil
}

// Seed installs a completed record without running a build, used to warm the
// cache from the archive at startup. A key that already has an entry is left
// alone so a live build always wins over archived state.
func (c *Cache) Seed(rec *model.AnalysisRecord) bool {
	if rec == nil {
		return false
	}
	key, err := Canonicalize(rec.Key)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}

	rec.Key = key
	rec.Status = model.StatusReady
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = c.now()
	}
	e := &entry{record: rec, done: make(chan struct{})}
	close(e.done)
	c.entries[key] = e
	return true
}

// Invalidate removes a completed entry so the next GetOrCreate rebuilds it.
// An in-flight entry survives; the build that is already running wins.
func (c *Cache) Invalidate(rawURL string) bool {
	key, err := Canonicalize(rawURL)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.completed() {
		return false
	}
	delete(c.entries, key)
	return true
}

// Stats counts entries by status.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	for _, e := range c.entries {
		s.Entries++
		if !e.completed() {
			s.Pending++
			continue
		}
		e.mu.Lock()
		if e.err != nil {
			s.Failed++
		} else {
			s.Ready++
			s.Chunks += len(e.record.Chunks)
		}
		e.mu.Unlock()
	}
	return s
}

// StartJanitor evicts entries idle past the TTL on the given interval. The
// returned stop function is idempotent. In-flight entries are never evicted.
func (c *Cache) StartJanitor(interval, ttl time.Duration) func() {
	if interval <= 0 || ttl <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.evictIdle(ttl); n > 0 {
					zap.L().Info("cache: evicted idle entries", zap.Int("count", n))
				}
			case <-stop:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}

func (c *Cache) evictIdle(ttl time.Duration) int {
	cutoff := c.now().Add(-ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if !e.completed() {
			continue
		}
		e.mu.Lock()
		idle := e.record.LastAccessedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
