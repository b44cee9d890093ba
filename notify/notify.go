// Package notify delivers verification codes to account holders.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind identifies what a message is for.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindTwoFactor         Kind = "two_factor"
	KindAccountDisable    Kind = "account_disable"
)

// Message is one outbound notification. Code is the secret the recipient
// types back; it must never be logged.
type Message struct {
	Kind   Kind
	To     string
	Name   string
	Code   string
	Expiry time.Duration
}

// Notifier sends messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Render returns the subject and plain-text body for msg.
func Render(msg Message) (subject, body string) {
	greeting := "Hello,"
	if name := strings.TrimSpace(msg.Name); name != "" {
		greeting = "Hello " + name + ","
	}
	minutes := int(msg.Expiry.Round(time.Minute) / time.Minute)
	validity := ""
	if minutes > 0 {
		validity = fmt.Sprintf(" It expires in %d minutes.", minutes)
	}

	switch msg.Kind {
	case KindEmailVerification:
		subject = "Verify your email address"
		body = fmt.Sprintf("%s\n\nYour verification code is %s.%s\n", greeting, msg.Code, validity)
	case KindPasswordReset:
		subject = "Reset your password"
		body = fmt.Sprintf("%s\n\nUse this code to reset your password: %s.%s\nIf you did not ask for a reset you can ignore this message.\n", greeting, msg.Code, validity)
	case KindTwoFactor:
		subject = "Your sign-in code"
		body = fmt.Sprintf("%s\n\nYour sign-in code is %s.%s\n", greeting, msg.Code, validity)
	case KindAccountDisable:
		subject = "Confirm account deactivation"
		body = fmt.Sprintf("%s\n\nEnter %s to confirm that you want to disable your account.%s\n", greeting, msg.Code, validity)
	default:
		subject = "Your code"
		body = fmt.Sprintf("%s\n\nYour code is %s.%s\n", greeting, msg.Code, validity)
	}
	return subject, body
}

// LogNotifier writes messages to a logger instead of delivering them. Codes
// are included only when RevealCodes is set, for local development.
type LogNotifier struct {
	Logger      logrus.FieldLogger
	RevealCodes bool
}

func (n LogNotifier) Notify(_ context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fields := logrus.Fields{"kind": msg.Kind, "to": msg.To}
	if n.RevealCodes {
		fields["code"] = msg.Code
	}
	logger.WithFields(fields).Info("notification")
	return nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
