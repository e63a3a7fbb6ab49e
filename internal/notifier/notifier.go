// Package notifier delivers order status notifications to an external
// collaborator. Delivery is fire-and-forget: failures are logged by the
// caller and never affect the triggering state change.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mealorder-service/pkg/config"

	"go.uber.org/zap"
)

// Notification is the payload contract with the external notifier.
type Notification struct {
	OrderID          uint   `json:"order_id"`
	RecipientContact string `json:"recipient_contact"`
	StatusMessage    string `json:"status_message"`
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// New builds the notifier selected by configuration.
func New(cfg *config.NotifierConfig, log *zap.Logger) Notifier {
	switch cfg.Backend {
	case "kafka":
		return NewKafkaNotifier(cfg.KafkaBroker, cfg.KafkaTopic)
	case "webhook":
		if cfg.WebhookURL == "" {
			log.Warn("Notifier webhook URL not configured, notifications will be dropped")
			return NopNotifier{}
		}
		return NewWebhookNotifier(cfg.WebhookURL)
	default:
		log.Warn("Unknown notifier backend, notifications will be dropped",
			zap.String("backend", cfg.Backend))
		return NopNotifier{}
	}
}

// NopNotifier drops every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// WebhookNotifier POSTs the payload as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
