package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/insight-api/pkg/anthropic"
)

func TestCollector_RecordAndSnapshot(t *testing.T) {
	c := NewCollector()

	c.RecordAnalysis(false)
	c.RecordAnalysis(false)
	c.RecordAnalysis(true)
	c.RecordCacheHit()
	c.RecordChatTurn()
	c.RecordChatTurn()
	c.RecordAugmentation()
	c.RecordLexicalFallback()

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Analyses)
	assert.Equal(t, 1, snap.AnalysisFailures)
	assert.Equal(t, 1, snap.CacheHits)
	assert.Equal(t, 2, snap.ChatTurns)
	assert.Equal(t, 1, snap.Augmentations)
	assert.Equal(t, 1, snap.LexicalFallbacks)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RecordUsage(t *testing.T) {
	c := NewCollector()

	c.RecordUsage("claude-haiku-4-5-20251001", anthropic.TokenUsage{
		InputTokens:          1_000_000,
		OutputTokens:         1_000_000,
		CacheReadInputTokens: 500,
	})
	c.RecordUsage("claude-haiku-4-5-20251001", anthropic.TokenUsage{
		InputTokens:  2_000,
		OutputTokens: 1_000,
	})

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.LLMCalls)
	assert.Equal(t, int64(1_002_500), snap.InputTokens)
	assert.Equal(t, int64(1_001_000), snap.OutputTokens)
	// $0.80/MTok in + $4.00/MTok out, cache reads at a tenth of input.
	assert.InDelta(t, 4.80, snap.LLMCostUSD, 0.01)
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordAnalysis(true)
		c.RecordCacheHit()
		c.RecordChatTurn()
		c.RecordAugmentation()
		c.RecordLexicalFallback()
		c.RecordUsage("claude-haiku-4-5-20251001", anthropic.TokenUsage{InputTokens: 10})
	})

	snap := c.Snapshot()
	assert.Zero(t, snap.Analyses)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordCacheHit()
			c.RecordChatTurn()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 50, snap.CacheHits)
	assert.Equal(t, 50, snap.ChatTurns)
}
