package sender

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender records notifications to the log instead of a broker. Used when
// no AMQP address is configured (local development, tests).
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the notification and reports success.
func (s *LogSender) Send(ctx context.Context, recipient, templateKey string, variables map[string]string) (*Result, error) {
	messageID := uuid.NewString()
	s.logger.Info("notification dispatched",
		slog.String("recipient", recipient),
		slog.String("template", templateKey),
		slog.String("message_id", messageID))
	return &Result{Success: true, ProviderMessageID: messageID}, nil
}
