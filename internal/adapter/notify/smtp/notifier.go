// Package smtp delivers account e-mails.
package smtp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Notifier implements domain.Notifier over SMTP with HTML bodies.
type Notifier struct {
	from   string
	client sender
}

// New builds a notifier. Authentication is enabled when a username is set;
// STARTTLS is used opportunistically.
func New(cfg Config) (*Notifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("op=smtp.New: %w", err)
	}
	return &Notifier{from: cfg.From, client: c}, nil
}

// Send delivers one HTML message.
func (n *Notifier) Send(ctx context.Context, recipient, subject, body string) error {
	msg, err := buildMessage(n.from, recipient, subject, body)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("op=smtp.Send: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Info("email sent", slog.String("subject", subject))
	return nil
}

func buildMessage(from, recipient, subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("op=smtp.Send: from: %w", err)
	}
	if err := m.To(recipient); err != nil {
		return nil, fmt.Errorf("op=smtp.Send: to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

// LogNotifier writes messages to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogNotifier struct{}

// Send implements domain.Notifier.
func (LogNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	obsctx.LoggerFromContext(ctx).Info("email not sent: smtp disabled",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}
