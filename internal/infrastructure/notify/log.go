package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/application/executor"
)

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("service", "notifier").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, msg executor.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info().
		Str("channel", msg.Channel).
		Str("subject", msg.Subject).
		Str("task_id", msg.TaskID).
		Int("body_bytes", len(msg.Body)).
		Msg("notification")
	return nil
}
