package notify

import (
	"context"

	"github.com/rs/zerolog"

	"billing-ops-platform/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier records notification events to the structured log. Delivery to
// a real channel (email, push) is expected to consume the same port.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "Notifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, event string, payload map[string]interface{}) error {
	n.log.Info().Str("user_id", userID).Str("event", event).Fields(payload).Msg("notification")
	return nil
}
