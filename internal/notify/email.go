package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig configures the email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// mailSender is the part of *mail.Client the channel uses.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailChannel sends codes over SMTP.
type EmailChannel struct {
	from   string
	client mailSender
}

// NewEmailChannel builds an SMTP client from cfg. No connection is made until the first delivery.
func NewEmailChannel(cfg SMTPConfig) (*EmailChannel, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		slog.Warn("notify: SMTP without TLS", "host", cfg.Host)
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &EmailChannel{from: cfg.From, client: client}, nil
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver mails the code to the contact's address. Contacts without an email are skipped.
func (c *EmailChannel) Deliver(ctx context.Context, to Contact, code string, expiresAt time.Time) (bool, error) {
	if to.Email == "" {
		return false, nil
	}
	msg, err := codeMessage(c.from, to.Email, code, expiresAt)
	if err != nil {
		return false, err
	}
	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		return false, fmt.Errorf("send mail: %w", err)
	}
	return true, nil
}

func codeMessage(from, to, code string, expiresAt time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject("Your verification code")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your verification code is %s.\n\nIt expires at %s. If you did not try to sign in, change your password.\n",
		code, expiresAt.UTC().Format(time.RFC1123)))
	return msg, nil
}
