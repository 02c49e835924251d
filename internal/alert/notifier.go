package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgeandnode/graph-ixi/pkg/webhooks"
)

// WebhookNotifier delivers rendered alerts to a Slack-compatible incoming
// webhook. Ordinary transport failure is reported as a false success flag,
// never as an error: the caller retries on the next cycle.
type WebhookNotifier struct {
	WebhookURL string
	// Secret, when non-empty, signs the request body into X-Signature so
	// non-Slack receivers can authenticate the sender.
	Secret string
	HTTP   *http.Client
	Log    *slog.Logger
}

func NewWebhookNotifier(webhookURL, secret string, log *slog.Logger) (*WebhookNotifier, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &WebhookNotifier{
		WebhookURL: strings.TrimSpace(webhookURL),
		Secret:     secret,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		Log:        log,
	}, nil
}

// Send posts {"text": message} and reports delivery success.
func (n *WebhookNotifier) Send(ctx context.Context, message string) bool {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		n.Log.Error("encode notification payload", "err", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		n.Log.Error("build notification request", "err", err)
		return false
	}
	req.Header.Set("content-type", "application/json")
	if n.Secret != "" {
		req.Header.Set(webhooks.SignatureHeader, webhooks.SignBody(n.Secret, body))
	}

	resp, err := n.HTTP.Do(req)
	if err != nil {
		n.Log.Error("send notification", "err", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.Log.Error("notification rejected", "status", resp.StatusCode)
		return false
	}
	n.Log.Info("notification delivered")
	return true
}
