package mail

import (
	"context"

	"globalbangla.org/internal/obs"
)

// Console writes messages to the structured log instead of sending them.
// Used in development and tests.
type Console struct{}

func (Console) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	obs.Info("mail_console", map[string]any{
		"to":      msg.To.String(),
		"subject": msg.Subject,
		"text":    msg.Text,
	})
	return nil
}
