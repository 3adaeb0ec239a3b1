package email

import (
	"context"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
)

// LogSender stands in for SMTP in development. Only the recipient and the
// subject are logged, since bodies carry codes and reset tokens.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "email_log_sender")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, _ string) error {
	s.log.Info(ctx, "email not sent, no SMTP host configured", "to", to, "subject", subject)
	return nil
}
