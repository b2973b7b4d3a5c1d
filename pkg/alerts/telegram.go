package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts messages through the Telegram bot API.
type TelegramNotifier struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramNotifier creates a bot notifier. An empty apiURL uses the public API.
func NewTelegramNotifier(apiURL, token, chatID string) *TelegramNotifier {
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	return &TelegramNotifier{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(telegramPayload{ChatID: t.chatID, Text: msg.Text})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		return model.TransportError("telegram", redact(err, t.token))
	}
	defer resp.Body.Close()

	var ack telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&ack)

	if resp.StatusCode >= 500 {
		return model.TransportError("telegram", fmt.Errorf("telegram returned status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return model.DeliveryError("telegram", fmt.Errorf("decode telegram response (status %d): %w", resp.StatusCode, decodeErr))
	}
	if !ack.OK {
		return model.DeliveryError("telegram", fmt.Errorf("%w: %s", model.ErrNotAcknowledged, ack.Description))
	}
	return nil
}

type telegramPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "<redacted>"))
}
