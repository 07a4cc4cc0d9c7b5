package notify

import (
	"context"
	"log/slog"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

// LogNotifier records notifications in the log instead of delivering them.
// It is used when no SMTP relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.logger.Info("access link ready (no mail relay configured)",
		"recipient", msg.Recipient,
		"resource", msg.ResourceName,
		"access_url", msg.AccessURL,
	)
	return nil
}
