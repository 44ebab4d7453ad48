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

	"github.com/sells-group/places-crawler/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCrawlHalted        AlertType = "crawl_halted"
	AlertCoordinateFailures AlertType = "coordinate_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Recipient string         `json:"recipient,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns a run snapshot into alerts and delivers them via webhook.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given alert config.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != ""
}

// Evaluate returns the alerts a finished run warrants.
func (a *Alerter) Evaluate(snap *RunSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.FatalReason != "" {
		alerts = append(alerts, Alert{
			Type:      AlertCrawlHalted,
			Severity:  "critical",
			Recipient: a.cfg.Recipient,
			Message: fmt.Sprintf(
				"Execution interrupted for region %s (%s): %d of %d coordinates completed",
				snap.Region, snap.FatalReason, snap.Completed, snap.Coordinates,
			),
			Details: map[string]any{
				"run_id": snap.RunID,
				"reason": snap.FatalReason,
				"error":  snap.Error,
			},
			Timestamp: now,
		})
	}

	if snap.Failed > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertCoordinateFailures,
			Severity:  "warning",
			Recipient: a.cfg.Recipient,
			Message: fmt.Sprintf(
				"%d coordinate(s) failed in region %s and remain queued",
				snap.Failed, snap.Region,
			),
			Details: map[string]any{
				"run_id":    snap.RunID,
				"failed":    snap.Failed,
				"completed": snap.Completed,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
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
	if a.cfg.WebhookKey != "" {
		req.Header.Set("apikey", a.cfg.WebhookKey)
	}

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
