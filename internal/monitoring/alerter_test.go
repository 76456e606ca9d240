package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplydigital/pole-burndown/internal/config"
)

func healthyConfig() config.MonitorConfig {
	return config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DLQDepthThreshold:    50,
		StaleAfterHours:      26,
	}
}

func healthySnapshot() *Snapshot {
	return &Snapshot{
		Runs:          2,
		Processed:     95,
		Failed:        5,
		FailRate:      0.05,
		DLQDepth:      5,
		LastDaily:     at(t0.Add(-3 * time.Hour)),
		LookbackHours: 24,
		CollectedAt:   t0,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	assert.Empty(t, NewAlerter(healthyConfig()).Evaluate(healthySnapshot()))
}

func TestAlerter_Evaluate_JobFailureRate(t *testing.T) {
	snap := healthySnapshot()
	snap.Processed, snap.Failed, snap.FailRate = 12, 8, 0.4

	alerts := NewAlerter(healthyConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertJobFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 20, alerts[0].Details["attempted"])
}

func TestAlerter_Evaluate_MinimumAttempted(t *testing.T) {
	snap := healthySnapshot()
	snap.Processed, snap.Failed, snap.FailRate = 1, 2, 0.666

	assert.Empty(t, NewAlerter(healthyConfig()).Evaluate(snap))
}

func TestAlerter_Evaluate_DLQDepth(t *testing.T) {
	snap := healthySnapshot()
	snap.DLQDepth = 51

	alerts := NewAlerter(healthyConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQDepth, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "51 jobs")

	cfg := healthyConfig()
	cfg.DLQDepthThreshold = 0
	assert.Empty(t, NewAlerter(cfg).Evaluate(snap))
}

func TestAlerter_Evaluate_StaleDaily(t *testing.T) {
	snap := healthySnapshot()
	snap.LastDaily = at(t0.Add(-30 * time.Hour))

	alerts := NewAlerter(healthyConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleDaily, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "30h0m0s ago")

	snap.LastDaily = nil
	alerts = NewAlerter(healthyConfig()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "No daily run finished in the last 24h")

	cfg := healthyConfig()
	cfg.StaleAfterHours = 0
	assert.Empty(t, NewAlerter(cfg).Evaluate(snap))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	snap := healthySnapshot()
	snap.Processed, snap.Failed, snap.FailRate = 10, 10, 0.5
	snap.DLQDepth = 80
	snap.LastDaily = nil

	alerts := NewAlerter(healthyConfig()).Evaluate(snap)
	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.Len(t, alerts, 3)
	assert.True(t, types[AlertJobFailureRate])
	assert.True(t, types[AlertDLQDepth])
	assert.True(t, types[AlertStaleDaily])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertJobFailureRate, Severity: "high", Message: "one"},
		{Type: AlertStaleDaily, Severity: "high", Message: "two"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertDLQDepth}}))

	a = NewAlerter(config.MonitorConfig{WebhookURL: "http://example.com"})
	assert.Zero(t, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{WebhookURL: ts.URL})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertDLQDepth}}))
}
