package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// WebhookNotifier posts {"text": ...} to an incoming webhook, Slack style.
// Escalated messages get the configured member mentions appended.
type WebhookNotifier struct {
	url      string
	secret   string
	mentions []string
	client   *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookNotifier(url, secret string, mentions []string) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		secret:   secret,
		mentions: mentions,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if msg.Escalate {
		text += mentionSuffix(w.mentions)
	}

	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gasfree-sentinel/1.0")

	if w.secret != "" {
		sig := computeHMAC(body, []byte(w.secret))
		req.Header.Set("X-Signature-256", "sha256="+sig)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return model.TransportError("webhook", fmt.Errorf("send webhook: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.TransportError("webhook", fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.TransportError("webhook", fmt.Errorf("read webhook response: %w", err))
	}
	if !webhookAcknowledged(raw) {
		return model.DeliveryError("webhook", fmt.Errorf("%w: %s", model.ErrNotAcknowledged, strings.TrimSpace(string(raw))))
	}
	return nil
}

// webhookAcknowledged accepts the literal "ok" or a JSON object whose "ok"
// is true. Anything else, an empty body included, is unacknowledged.
func webhookAcknowledged(raw []byte) bool {
	if strings.TrimSpace(string(raw)) == "ok" {
		return true
	}
	var ack struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return false
	}
	return ack.OK != nil && *ack.OK
}

func mentionSuffix(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		if id == "" {
			continue
		}
		b.WriteString(" <@")
		b.WriteString(id)
		b.WriteString(">")
	}
	return b.String()
}

type webhookPayload struct {
	Text string `json:"text"`
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
