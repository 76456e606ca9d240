// Package notify delivers generated reports by email.
package notify

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/deeplydigital/pole-burndown/internal/resilience"
)

// Sender dials an SMTP server and sends messages.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Message is one report email.
type Message struct {
	Subject     string
	Text        string
	HTML        string
	Attachments []string
}

// Mailer sends report emails to a fixed recipient list.
type Mailer struct {
	sender Sender
	from   string
	to     []string
	retry  resilience.RetryConfig
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSender replaces the SMTP dialer.
func WithSender(s Sender) Option {
	return func(m *Mailer) { m.sender = s }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(m *Mailer) { m.retry = cfg }
}

// NewMailer creates a Mailer using STARTTLS on host:port.
func NewMailer(host string, port int, username, password, from string, to []string, opts ...Option) *Mailer {
	if from == "" {
		from = username
	}
	m := &Mailer{
		sender: gomail.NewDialer(host, port, username, password),
		from:   from,
		to:     to,
		retry:  resilience.RetryConfig{MaxAttempts: 3},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retry.OnRetry == nil {
		m.retry.OnRetry = resilience.RetryLogger("smtp", "send")
	}
	return m
}

// Build renders msg for every recipient. Each recipient gets their own
// message so addresses are not disclosed to each other.
func (m *Mailer) Build(msg Message) []*gomail.Message {
	out := make([]*gomail.Message, 0, len(m.to))
	for _, to := range m.to {
		gm := gomail.NewMessage()
		gm.SetHeader("From", m.from)
		gm.SetHeader("To", to)
		gm.SetHeader("Subject", msg.Subject)
		gm.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			gm.AddAlternative("text/html", msg.HTML)
		}
		for _, path := range msg.Attachments {
			gm.Attach(path, gomail.Rename(filepath.Base(path)))
		}
		out = append(out, gm)
	}
	return out
}

// Send delivers msg to every recipient. Network failures are retried; SMTP
// rejections are not.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if len(m.to) == 0 {
		return eris.New("notify: no recipients")
	}
	msgs := m.Build(msg)
	err := resilience.Do(ctx, m.retry, func(context.Context) error {
		return m.sender.DialAndSend(msgs...)
	})
	if err != nil {
		return eris.Wrapf(err, "notify: send %q", msg.Subject)
	}
	zap.L().Info("notify: report emailed",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(m.to)),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
