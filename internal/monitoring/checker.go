package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/config"
)

// Checker runs periodic alert checks in the background. Each tick it diffs
// the collector counters against the previous tick and evaluates that window.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	prev      MetricsSnapshot
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Checker {
	interval := cfg.CheckInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	lifetime := c.collector.Snapshot()
	window := diff(lifetime, c.prev)
	c.prev = lifetime

	alerts := c.alerter.Evaluate(window, lifetime)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}

// diff returns the counter deltas between two snapshots. Gauge-like fields
// (uptime, timestamps) carry the current values.
func diff(cur, prev MetricsSnapshot) MetricsSnapshot {
	return MetricsSnapshot{
		Analyses:         cur.Analyses - prev.Analyses,
		AnalysisFailures: cur.AnalysisFailures - prev.AnalysisFailures,
		CacheHits:        cur.CacheHits - prev.CacheHits,
		ChatTurns:        cur.ChatTurns - prev.ChatTurns,
		Augmentations:    cur.Augmentations - prev.Augmentations,
		LexicalFallbacks: cur.LexicalFallbacks - prev.LexicalFallbacks,
		LLMCalls:         cur.LLMCalls - prev.LLMCalls,
		InputTokens:      cur.InputTokens - prev.InputTokens,
		OutputTokens:     cur.OutputTokens - prev.OutputTokens,
		LLMCostUSD:       cur.LLMCostUSD - prev.LLMCostUSD,
		UptimeSeconds:    cur.UptimeSeconds,
		CollectedAt:      cur.CollectedAt,
	}
}
