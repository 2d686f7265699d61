package notifier

import (
	"context"
	"errors"

	"github.com/yeremiapane/bar-order-app/utils"
)

// ErrSenderDisabled marks a message that was intentionally not sent.
var ErrSenderDisabled = errors.New("sms provider not configured")

// Sender delivers one SMS to an E.164 number and returns the provider message id.
type Sender interface {
	Name() string
	Send(ctx context.Context, to, body string) (string, error)
}

// LogSender is used when no SMS provider is configured.
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(_ context.Context, to, body string) (string, error) {
	utils.InfoLogger.Printf("SMS skipped (provider not configured) to %s: %s", to, body)
	return "", ErrSenderDisabled
}
