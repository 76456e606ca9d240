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

	"github.com/deeplydigital/pole-burndown/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertDLQDepth       AlertType = "dlq_depth"
	AlertStaleDaily     AlertType = "stale_daily"
)

// minAttempted keeps a handful of failures on a quiet day from paging.
const minAttempted = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and posts
// breaches to a webhook.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	attempted := snap.Processed + snap.Failed
	if attempted >= minAttempted && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, attempted, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"attempted":    attempted,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DLQDepthThreshold > 0 && snap.DLQDepth > a.cfg.DLQDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDLQDepth,
			Severity: "medium",
			Message: fmt.Sprintf("%d jobs waiting for retry (threshold %d)",
				snap.DLQDepth, a.cfg.DLQDepthThreshold),
			Details: map[string]any{
				"depth":     snap.DLQDepth,
				"threshold": a.cfg.DLQDepthThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.LastDaily == nil || now.Sub(*snap.LastDaily) > limit {
			msg := fmt.Sprintf("No daily run finished in the last %dh", snap.LookbackHours)
			details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours}
			if snap.LastDaily != nil {
				msg = fmt.Sprintf("Last daily run finished %s ago", now.Sub(*snap.LastDaily).Round(time.Minute))
				details["last_daily"] = snap.LastDaily.Format(time.RFC3339)
			}
			alerts = append(alerts, Alert{
				Type:      AlertStaleDaily,
				Severity:  "high",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns how
// many were accepted.
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
