package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Sendgrid delivers messages through the SendGrid v3 API.
type Sendgrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// SendgridOption configures Sendgrid.
type SendgridOption func(*Sendgrid)

// WithHost overrides the API host.
func WithHost(host string) SendgridOption {
	return func(s *Sendgrid) {
		if host != "" {
			s.host = host
		}
	}
}

// WithSubjectPrefix prepends prefix to every subject.
func WithSubjectPrefix(prefix string) SendgridOption {
	return func(s *Sendgrid) { s.subjPrefix = prefix }
}

// NewSendgrid constructs a SendGrid mailer.
func NewSendgrid(key, fromName, fromAddress string, opts ...SendgridOption) *Sendgrid {
	s := &Sendgrid{
		key:  key,
		host: sendgridHost,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sendgrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (s *Sendgrid) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("mail: sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("mail: sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
