package notify

import (
	"context"
	"fmt"
	"time"

	"aiTradeEngine/internal/domain"

	"github.com/go-resty/resty/v2"
)

// WebhookSender posts notifications as JSON to a URL.
type WebhookSender struct {
	client *resty.Client
	url    string
}

// webhookPayload is the wire format of a notification.
type webhookPayload struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	UserID    int64                  `json:"userId,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	PnL       *float64               `json:"pnl,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(url string, timeout time.Duration) (*WebhookSender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is not configured")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &WebhookSender{client: client, url: url}, nil
}

// Name returns the sender name.
func (w *WebhookSender) Name() string {
	return "webhook"
}

// Send posts the notification.
func (w *WebhookSender) Send(ctx context.Context, n *domain.Notification) error {
	payload := webhookPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		UserID:    n.UserID,
		Symbol:    n.Symbol,
		Action:    n.Action,
		Reason:    n.Reason,
		PnL:       n.PnL,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Data:      n.Data,
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
