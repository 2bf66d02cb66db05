// Package mail sends transactional email such as password reset links.
package mail

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// Message is a single outbound email.
type Message struct {
	To      mail.Address
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("mail: message has no recipient")

func (m Message) validate() error {
	if strings.TrimSpace(m.To.Address) == "" {
		return ErrNoRecipient
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("mail: message has no content")
	}
	return nil
}
