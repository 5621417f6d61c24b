// Package mail delivers plain-text email.
package mail

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether SMTP delivery is configured.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	client *gomail.Client
	from   string
}

func NewSMTP(cfg Config) (*SMTP, error) {
	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port != 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
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
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &SMTP{client: client, from: cfg.From}, nil
}

func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	m, err := message(s.from, to, subject, body)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}

func message(from, to, subject, body string) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, errors.Wrap(err, "set sender")
	}
	if err := m.To(to); err != nil {
		return nil, errors.Wrap(err, "set recipient")
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, body)
	return m, nil
}

// Log writes messages to the request logger instead of sending them.
type Log struct{}

func (Log) Send(ctx context.Context, to, subject, body string) error {
	lg := zctx.From(ctx)
	lg.Info("Mail delivery disabled, message logged", zap.String("to", to), zap.String("subject", subject))
	lg.Debug("Mail body", zap.String("to", to), zap.String("body", body))
	return nil
}
