package notify

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs notifications instead of delivering them. Used when SMTP
// is not configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the notification and returns nil.
func (n *NoopSender) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("notification (noop, not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
