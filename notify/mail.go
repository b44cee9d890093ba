package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailgun sends messages through the Mailgun API.
type Mailgun struct {
	mg   mailgun.Mailgun
	from string
}

// NewMailgun builds a Mailgun notifier. apiBase overrides the API endpoint
// when non-empty.
func NewMailgun(domain, apiKey, from, apiBase string) (*Mailgun, error) {
	if domain == "" || apiKey == "" || from == "" {
		return nil, errors.New("invalid Mailgun configuration")
	}
	mg := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	return &Mailgun{mg: mg, from: from}, nil
}

func (m *Mailgun) Notify(ctx context.Context, msg Message) error {
	subject, body := Render(msg)
	message := m.mg.NewMessage(m.from, subject, body, msg.To)
	if _, _, err := m.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

// SendGrid sends messages through the SendGrid v3 API.
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGrid builds a SendGrid notifier.
func NewSendGrid(apiKey, from string) (*SendGrid, error) {
	if apiKey == "" || from == "" {
		return nil, errors.New("invalid SendGrid configuration")
	}
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("", from),
	}, nil
}

func (s *SendGrid) message(msg Message) *mail.SGMailV3 {
	subject, body := Render(msg)
	return mail.NewSingleEmailPlainText(s.from, subject, mail.NewEmail(msg.Name, msg.To), body)
}

func (s *SendGrid) Notify(ctx context.Context, msg Message) error {
	resp, err := s.client.SendWithContext(ctx, s.message(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
