// Package notify delivers agent alerts to external channels. Alert
// actions and cycle failures end up here; delivery failures are logged
// and never fail the cycle that raised them.
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the severity of an alert.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert is one notification to be delivered.
type Alert struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier is implemented by all delivery backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the default
// backend when no Telegram credentials are configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	evt := n.logger.Info()
	switch alert.Level {
	case LevelWarning:
		evt = n.logger.Warn()
	case LevelCritical:
		evt = n.logger.Error()
	}
	evt.Str("title", alert.Title).Msg(alert.Message)
	return nil
}
