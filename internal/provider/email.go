package provider

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers transactional email. Failures are side-channel: callers
// log and continue, they never fail the primary operation.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer is the development mailer: it writes the message to the log
// instead of an SMTP gateway.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (dev delivery)")
	return nil
}
