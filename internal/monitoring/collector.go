// Package monitoring tracks in-process service counters exposed on the stats
// endpoint.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/insight-api/pkg/anthropic"
)

// MetricsSnapshot holds a point-in-time view of service activity.
type MetricsSnapshot struct {
	Analyses         int `json:"analyses"`
	AnalysisFailures int `json:"analysis_failures"`
	CacheHits        int `json:"cache_hits"`
	ChatTurns        int `json:"chat_turns"`
	Augmentations    int `json:"augmentations"`

	// LexicalFallbacks counts retrievals that scored without embeddings.
	LexicalFallbacks int `json:"lexical_fallbacks"`

	LLMCalls     int     `json:"llm_calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	LLMCostUSD   float64 `json:"llm_cost_usd"`

	UptimeSeconds int64     `json:"uptime_seconds"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector accumulates counters. All methods are safe on a nil receiver so
// components can record unconditionally.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time

	analyses         int
	analysisFailures int
	cacheHits        int
	chatTurns        int
	augmentations    int
	lexicalFallbacks int

	llmCalls     int
	inputTokens  int64
	outputTokens int64
	costUSD      float64
}

// NewCollector creates a collector with the uptime clock started.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

// RecordAnalysis counts one completed analysis build.
func (c *Collector) RecordAnalysis(failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyses++
	if failed {
		c.analysisFailures++
	}
}

// RecordCacheHit counts an analyze call served from cache.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// RecordChatTurn counts one answered question.
func (c *Collector) RecordChatTurn() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatTurns++
}

// RecordAugmentation counts a page fetched mid-conversation.
func (c *Collector) RecordAugmentation() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.augmentations++
}

// RecordLexicalFallback counts a retrieval that ran without embeddings.
func (c *Collector) RecordLexicalFallback() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lexicalFallbacks++
}

// RecordUsage accumulates tokens and estimated cost for one LLM call.
func (c *Collector) RecordUsage(model string, u anthropic.TokenUsage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmCalls++
	c.inputTokens += u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
	c.outputTokens += u.OutputTokens
	c.costUSD += u.EstimateCost(model)
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{CollectedAt: time.Now().UTC()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return MetricsSnapshot{
		Analyses:         c.analyses,
		AnalysisFailures: c.analysisFailures,
		CacheHits:        c.cacheHits,
		ChatTurns:        c.chatTurns,
		Augmentations:    c.augmentations,
		LexicalFallbacks: c.lexicalFallbacks,
		LLMCalls:         c.llmCalls,
		InputTokens:      c.inputTokens,
		OutputTokens:     c.outputTokens,
		LLMCostUSD:       c.costUSD,
		UptimeSeconds:    int64(time.Since(c.startedAt).Seconds()),
		CollectedAt:      time.Now().UTC(),
	}
}
