package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/angelmondragon/marketplace-orders/pkg/config"
)

// EmailChannel delivers a single email.
type EmailChannel interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSChannel delivers a single text message.
type SMSChannel interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SendgridEmail sends mail through the SendGrid v3 API.
type SendgridEmail struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendgridEmail returns nil when SendGrid is not configured.
func NewSendgridEmail(cfg config.SendgridConfig) *SendgridEmail {
	if !cfg.Enabled() {
		return nil
	}
	return &SendgridEmail{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
	}
}

func (s *SendgridEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), body, renderHTML(subject, body))
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// TwilioSMS sends text messages through the Twilio REST API.
type TwilioSMS struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMS returns nil when Twilio is not configured.
func NewTwilioSMS(cfg config.TwilioConfig) *TwilioSMS {
	if !cfg.Enabled() {
		return nil
	}
	return &TwilioSMS{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		from: cfg.FromNumber,
	}
}

// SendSMS ignores ctx; the Twilio client has no context-aware call.
func (t *TwilioSMS) SendSMS(_ context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}

func renderHTML(title, body string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">`+
		`<h2>%s</h2><p>%s</p>`+
		`<p style="color: #999; font-size: 12px;">This is an automated message, please do not reply to this email.</p></div>`,
		html.EscapeString(title), html.EscapeString(body))
}

// ChannelsFromConfig returns the configured delivery channels. An unconfigured
// channel comes back as a nil interface so the sender skips it.
func ChannelsFromConfig(sg config.SendgridConfig, tw config.TwilioConfig) (EmailChannel, SMSChannel) {
	var (
		email EmailChannel
		sms   SMSChannel
	)
	if ch := NewSendgridEmail(sg); ch != nil {
		email = ch
	}
	if ch := NewTwilioSMS(tw); ch != nil {
		sms = ch
	}
	return email, sms
}
