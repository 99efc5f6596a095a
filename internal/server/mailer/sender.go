// Package mailer renders and sends the relay's emails.
package mailer

import (
	"context"
	"fmt"

	"github.com/casanet/remote-server/internal/logging"
	"github.com/wneessen/go-mail"
)

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From string
}

// SMTPSender sends mail through an authenticated SMTP server. Port 465
// uses implicit TLS, anything else requires STARTTLS.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := s.message(to, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("error creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("error sending mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat("casanet", s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return opts
}

// LogSender only logs what it would send. It stands in when no SMTP server
// is configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, _ string) error {
	s.logger.Warn(ctx, "smtp not configured, mail not sent", "to", to, "subject", subject)
	return nil
}
