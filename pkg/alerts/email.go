package alerts

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/resend/resend-go/v2"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Email body types.
const (
	BodyText = "text"
	BodyHTML = "html"
)

// EmailSender is the subset of the Resend emails service the notifier needs.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailConfig describes one outgoing email envelope.
type EmailConfig struct {
	From          string
	To            []string
	Cc            []string
	Bcc           []string
	SubjectPrefix string
	BodyType      string   // text or html
	Attachments   []string // file paths; missing files are skipped
}

// EmailNotifier delivers messages as transactional email through Resend.
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
	logger *slog.Logger
}

// NewEmailNotifier creates an email notifier using sender.
func NewEmailNotifier(cfg EmailConfig, sender EmailSender, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: sender, logger: logger}
}

// NewResendNotifier creates an email notifier backed by a Resend API client.
func NewResendNotifier(apiKey string, cfg EmailConfig, logger *slog.Logger) *EmailNotifier {
	return NewEmailNotifier(cfg, resend.NewClient(apiKey).Emails, logger)
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, msg Message) error {
	if e.sender == nil {
		return model.ConfigError("email", errors.New("email sender not configured"))
	}
	if e.cfg.From == "" || len(e.cfg.To) == 0 {
		return model.ConfigError("email", errors.New("from and to are required"))
	}

	params := &resend.SendEmailRequest{
		From:    e.cfg.From,
		To:      e.cfg.To,
		Cc:      e.cfg.Cc,
		Bcc:     e.cfg.Bcc,
		Subject: e.cfg.SubjectPrefix + msg.Subject,
		Headers: map[string]string{"X-Sentinel-Kind": string(msg.Kind)},
	}
	if e.cfg.BodyType == BodyHTML {
		params.Html = "<pre>" + html.EscapeString(msg.Text) + "</pre>"
	} else {
		params.Text = msg.Text
	}
	params.Attachments = e.attachments()

	sent, err := e.sender.SendWithContext(ctx, params)
	if err != nil {
		return model.TransportError("email", fmt.Errorf("send email: %w", err))
	}
	if sent == nil || sent.Id == "" {
		return model.DeliveryError("email", model.ErrNotAcknowledged)
	}
	return nil
}

func (e *EmailNotifier) attachments() []*resend.Attachment {
	var out []*resend.Attachment
	for _, path := range e.cfg.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warn("skip email attachment", "path", path, "error", err)
			continue
		}
		out = append(out, &resend.Attachment{
			Content:  data,
			Filename: filepath.Base(path),
		})
	}
	return out
}
