package push

import (
	"github.com/coursehub/coursehub-client/internal/platform/logger"
)

// AlertSink surfaces a user-facing alert outside the feed: an OS
// notification from the background agent, or a toast while the app is
// open.
type AlertSink interface {
	Show(title, body string, data map[string]string) error
}

// LogAlertSink writes alerts to the structured log. It is the default
// sink in headless environments and in tests.
type LogAlertSink struct {
	logger logger.Logger
}

// NewLogAlertSink creates a sink backed by the given logger.
func NewLogAlertSink(log logger.Logger) *LogAlertSink {
	return &LogAlertSink{logger: log}
}

// Show logs the alert.
func (s *LogAlertSink) Show(title, body string, data map[string]string) error {
	s.logger.Info("notification alert",
		"title", title,
		"body", body,
		"data", data,
	)
	return nil
}
