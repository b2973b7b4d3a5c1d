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

const defaultSlackAPI = "https://slack.com/api"

// SlackNotifier posts messages with a Slack bot token via chat.postMessage.
type SlackNotifier struct {
	apiURL  string
	token   string
	channel string
	client  *http.Client
}

// NewSlackNotifier creates a Slack bot notifier. An empty apiURL uses the public API.
func NewSlackNotifier(apiURL, token, channel string) *SlackNotifier {
	if apiURL == "" {
		apiURL = defaultSlackAPI
	}
	return &SlackNotifier{
		apiURL:  strings.TrimRight(apiURL, "/"),
		token:   token,
		channel: channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(slackPayload{Channel: s.channel, Text: msg.Text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return model.TransportError("slack", fmt.Errorf("send slack message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.TransportError("slack", fmt.Errorf("slack returned status %d", resp.StatusCode))
	}

	var ack slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return model.DeliveryError("slack", fmt.Errorf("decode slack response: %w", err))
	}
	if !ack.OK {
		return model.DeliveryError("slack", fmt.Errorf("%w: %s", model.ErrNotAcknowledged, ack.Error))
	}
	return nil
}

type slackPayload struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
