// Package notify formats and dispatches the two booking notifications.
package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// Attachment is a file attached to an outgoing notification.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one outbound notification. IdempotencyToken lets the transport
// deduplicate repeated delivery attempts of the same logical send.
type Message struct {
	To               string
	Subject          string
	HTMLBody         string
	Attachments      []Attachment
	IdempotencyToken string
}

// SendResult reports a successful dispatch.
type SendResult struct {
	MessageID string
}

// Transport delivers notifications.
type Transport interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// SMTPConfig holds the connection settings for the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPTransport is an SMTP implementation of Transport backed by go-mail.
type SMTPTransport struct {
	client *mail.Client
	from   string
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport creates a new SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPTransport{client: client, from: cfg.From}, nil
}

// Send delivers msg over SMTP. The idempotency token travels as an
// X-Idempotency-Key header so a deduplicating relay can drop repeats.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	m := mail.NewMsg()
	if err := m.From(t.from); err != nil {
		return SendResult{}, fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return SendResult{}, fmt.Errorf("set to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	m.SetGenHeader(mail.Header("X-Idempotency-Key"), msg.IdempotencyToken)
	m.SetMessageID()

	for _, att := range msg.Attachments {
		m.AttachReadSeeker(att.Filename, bytes.NewReader(att.Content))
	}

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return SendResult{}, fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return SendResult{MessageID: m.GetMessageID()}, nil
}
