package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insight-api/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.5,
		CostBudgetUSD:        100.0,
	})

	window := MetricsSnapshot{
		Analyses:         20,
		AnalysisFailures: 2,
		LexicalFallbacks: 1,
	}
	lifetime := MetricsSnapshot{LLMCostUSD: 12.50}

	alerts := a.Evaluate(window, lifetime)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.5,
		CostBudgetUSD:        100.0,
	})

	window := MetricsSnapshot{
		Analyses:         10,
		AnalysisFailures: 8,
	}

	alerts := a.Evaluate(window, MetricsSnapshot{})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertAnalysisFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "80.0%")
}

func TestAlerter_Evaluate_FailureRate_MinSample(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{FailureRateThreshold: 0.5})

	// Three builds all failed, but below the minimum sample.
	window := MetricsSnapshot{
		Analyses:         3,
		AnalysisFailures: 3,
	}

	alerts := a.Evaluate(window, MetricsSnapshot{})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RetrievalDegraded(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{FailureRateThreshold: 0.5})

	window := MetricsSnapshot{LexicalFallbacks: 12}

	alerts := a.Evaluate(window, MetricsSnapshot{})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRetrievalDegraded, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "12 retrievals")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.5,
		CostBudgetUSD:        10.0,
	})

	lifetime := MetricsSnapshot{LLMCostUSD: 12.73, LLMCalls: 420}

	alerts := a.Evaluate(MetricsSnapshot{}, lifetime)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$12.73")
	assert.Contains(t, alerts[0].Message, "$10.00")
}

func TestAlerter_Evaluate_CostBudgetDisabled(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{FailureRateThreshold: 0.5})

	lifetime := MetricsSnapshot{LLMCostUSD: 9999.0}

	alerts := a.Evaluate(MetricsSnapshot{}, lifetime)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var lastType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		lastType = string(alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitorConfig{WebhookURL: srv.URL})

	alerts := []Alert{
		{Type: AlertAnalysisFailureRate, Severity: "high", Message: "failure rate"},
		{Type: AlertCostOverrun, Severity: "high", Message: "over budget"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
	assert.Equal(t, string(AlertCostOverrun), lastType)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertCostOverrun, Message: "over budget"},
	})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitorConfig{WebhookURL: srv.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRetrievalDegraded, Message: "degraded"},
	})
	assert.Zero(t, sent)
}
