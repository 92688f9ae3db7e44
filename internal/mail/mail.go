package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/neighbor-group/internal/config"
	gomail "github.com/wneessen/go-mail"
)

// ErrDisabled is returned by the mailer used when SMTP is not configured.
var ErrDisabled = errors.New("outbound mail is not configured")

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns an SMTP mailer, or a disabled one when cfg lacks a host or
// sender address.
func New(cfg config.MailConfig) (Mailer, error) {
	if !cfg.Enabled() {
		return Disabled{}, nil
	}
	return NewSMTPMailer(cfg)
}

type SMTPMailer struct {
	client *gomail.Client
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg, err := buildMessage(m.from, to, subject, body)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return msg, nil
}

// Disabled refuses every message.
type Disabled struct{}

func (Disabled) Send(context.Context, string, string, string) error {
	return ErrDisabled
}
