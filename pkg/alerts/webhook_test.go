package alerts_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

func TestWebhookNotifier_Name(t *testing.T) {
	n := alerts.NewWebhookNotifier("http://example.com", "", nil)
	assert.Equal(t, "webhook", n.Name())
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "gasfree-sentinel/1.0", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("X-Signature-256"))

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "", []string{"U1", "U2"})
	err := n.Send(context.Background(), alerts.Message{Kind: alerts.KindDigest, Text: "daily digest"})
	require.NoError(t, err)
	assert.Equal(t, "daily digest", received["text"])
}

func TestWebhookNotifier_EscalateAppendsMentions(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "", []string{"U1", "U2"})
	err := n.Send(context.Background(), alerts.Message{Kind: alerts.KindAlert, Text: "balance low", Escalate: true})
	require.NoError(t, err)
	assert.Equal(t, "balance low <@U1> <@U2>", received["text"])
}

func TestWebhookNotifier_HMACSignature(t *testing.T) {
	secret := "my-secret-key"
	var signature string
	var body []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, secret, nil)
	err := n.Send(context.Background(), alerts.Message{Text: "signed"})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestWebhookNotifier_Acknowledgement(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		acked bool
	}{
		{"literal ok", "ok", true},
		{"literal ok with newline", "ok\n", true},
		{"json ok", `{"ok":true}`, true},
		{"empty", "", false},
		{"empty object", `{}`, false},
		{"null ok", `{"ok":null}`, false},
		{"json without ok", `{"id":"1"}`, false},
		{"error status", `{"status":"error"}`, false},
		{"json not ok", `{"ok":false,"error":"invalid_token"}`, false},
		{"unexpected text", "no_service", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := alerts.NewWebhookNotifier(server.URL, "", nil).Send(context.Background(), alerts.Message{Text: "x"})
			if tt.acked {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, model.ErrNotAcknowledged)
		})
	}
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "", nil)
	err := n.Send(context.Background(), alerts.Message{Text: "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, model.KindTransport, model.KindOf(err))
}
