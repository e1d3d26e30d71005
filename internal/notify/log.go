package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes notifications to the log. Used when no bot is configured.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, recipient, subject, body string) error {
	s.logger.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Str("body", body).
		Msg("notification")
	return nil
}
