// Package notify delivers operator alerts by mail.
package notify

import (
	"context"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type Alert struct {
	Subject string
	Body    string
}

type Alerter interface {
	Send(ctx context.Context, a Alert) error
}

type Config struct {
	From string
	To   string

	MailjetAPIKey    string
	MailjetSecretKey string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New builds the alert chain from config: Mailjet first, SMTP as fallback.
// With neither configured alerts are only logged.
func New(cfg Config, log logrus.FieldLogger) Alerter {
	var chain Fallback
	if cfg.MailjetAPIKey != "" && cfg.MailjetSecretKey != "" {
		chain = append(chain, NewMailjet(cfg))
	}
	if cfg.SMTPHost != "" {
		chain = append(chain, NewSMTP(cfg))
	}
	if len(chain) == 0 {
		log.Warn("no mail transport configured, alerts go to the log only")
	}
	return &logged{next: chain, log: log}
}

type Mailjet struct {
	client *mailjet.Client
	from   string
	to     string
}

func NewMailjet(cfg Config) *Mailjet {
	return &Mailjet{
		client: mailjet.NewMailjetClient(cfg.MailjetAPIKey, cfg.MailjetSecretKey),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (m *Mailjet) Send(_ context.Context, a Alert) error {
	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{
		{
			From:     &mailjet.RecipientV31{Email: m.from, Name: "Ledger"},
			To:       &mailjet.RecipientsV31{{Email: m.to}},
			Subject:  a.Subject,
			TextPart: a.Body,
		},
	}}
	if _, err := m.client.SendMailV31(messages); err != nil {
		return errors.Wrap(err, "mailjet send")
	}
	return nil
}

type SMTP struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewSMTP(cfg Config) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (s *SMTP) Send(_ context.Context, a Alert) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", a.Subject)
	m.SetBody("text/plain", a.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}

// Fallback tries each Alerter in order until one succeeds.
type Fallback []Alerter

func (f Fallback) Send(ctx context.Context, a Alert) error {
	var last error
	for _, next := range f {
		if last = next.Send(ctx, a); last == nil {
			return nil
		}
	}
	return last
}

type logged struct {
	next Alerter
	log  logrus.FieldLogger
}

func (l *logged) Send(ctx context.Context, a Alert) error {
	l.log.WithField("subject", a.Subject).Error(a.Body)
	if err := l.next.Send(ctx, a); err != nil {
		l.log.WithError(err).WithField("subject", a.Subject).Error("alert delivery failed")
		return err
	}
	return nil
}
