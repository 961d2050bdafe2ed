package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAnalysisFailureRate AlertType = "analysis_failure_rate"
	AlertRetrievalDegraded   AlertType = "retrieval_degraded"
	AlertCostOverrun         AlertType = "cost_overrun"
)

// Failure-rate alerts need a minimum sample so a single bad build on a quiet
// instance does not page anyone.
const minFinishedAnalyses = 5

// Lexical fallbacks below this count per window are treated as noise.
const minLexicalFallbacks = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates metrics against configured thresholds and sends alerts
// via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks one check window against thresholds and returns any alerts.
// window holds the counter deltas since the previous check; lifetime holds
// the totals since process start, used for the spend budget.
func (a *Alerter) Evaluate(window, lifetime MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Analysis failure rate over the window.
	if window.Analyses >= minFinishedAnalyses {
		rate := float64(window.AnalysisFailures) / float64(window.Analyses)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertAnalysisFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Analysis failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished since last check)",
					rate*100, a.cfg.FailureRateThreshold*100,
					window.AnalysisFailures, window.Analyses,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       window.AnalysisFailures,
					"finished":     window.Analyses,
				},
				Timestamp: now,
			})
		}
	}

	// Retrievals running without embeddings mean the embedding backend is
	// down or misconfigured.
	if window.LexicalFallbacks >= minLexicalFallbacks {
		alerts = append(alerts, Alert{
			Type:     AlertRetrievalDegraded,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d retrievals fell back to lexical scoring since last check",
				window.LexicalFallbacks,
			),
			Details: map[string]any{
				"lexical_fallbacks": window.LexicalFallbacks,
			},
			Timestamp: now,
		})
	}

	// LLM spend budget over the process lifetime.
	if a.cfg.CostBudgetUSD > 0 && lifetime.LLMCostUSD > a.cfg.CostBudgetUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"LLM spend $%.2f exceeds budget $%.2f",
				lifetime.LLMCostUSD, a.cfg.CostBudgetUSD,
			),
			Details: map[string]any{
				"cost_usd":   lifetime.LLMCostUSD,
				"budget_usd": a.cfg.CostBudgetUSD,
				"llm_calls":  lifetime.LLMCalls,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
