package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config selects and configures the mail provider.
type Config struct {
	Provider       string `env:"MAIL_PROVIDER" envDefault:"log"`
	From           string `env:"MAIL_FROM"`
	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
	MailgunAPIBase string `env:"MAILGUN_API_BASE"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	RevealCodes    bool   `env:"MAIL_LOG_CODES"`
	// Timeout bounds one background delivery.
	Timeout time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s"`
}

// New builds the notifier named by cfg.Provider.
func New(cfg Config, logger logrus.FieldLogger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "log":
		return LogNotifier{Logger: logger, RevealCodes: cfg.RevealCodes}, nil
	case "none":
		return Nop{}, nil
	case "mailgun":
		return NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.From, cfg.MailgunAPIBase)
	case "sendgrid":
		return NewSendGrid(cfg.SendGridAPIKey, cfg.From)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
