package alert

import (
	"context"

	"github.com/medrx/backend/internal/domain/alert"
	"go.uber.org/zap"
)

// LoggingNotificationSink writes notifications to the log.
// This is the default sink until a delivery service is wired in.
type LoggingNotificationSink struct {
	logger *zap.Logger
}

// NewLoggingNotificationSink creates a new logging sink
func NewLoggingNotificationSink(logger *zap.Logger) *LoggingNotificationSink {
	return &LoggingNotificationSink{
		logger: logger,
	}
}

// Send logs the notification
func (s *LoggingNotificationSink) Send(_ context.Context, n alert.Notification) error {
	s.logger.Info("NOTIFICATION",
		zap.String("target", n.Target),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.String("action_ref", n.ActionRef),
	)
	return nil
}

var _ alert.NotificationSink = (*LoggingNotificationSink)(nil)
