// Package mail delivers password reset links.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"

	gomail "github.com/go-mail/mail"
	"github.com/sirupsen/logrus"

	"sparehub.org/internal/obs"
)

const resetSubject = "Reset your Sparehub password"

// Dialer is the subset of *gomail.Dialer used by SMTPSender.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer Dialer
}

// SMTPConfig describes the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string // auto | ssl | none
}

// NewSMTPSender builds a sender backed by go-mail's dialer.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = gomail.NoStartTLS
	}
	return &SMTPSender{from: cfg.From, dialer: d}
}

// NewSMTPSenderWithDialer is used by tests.
func NewSMTPSenderWithDialer(from string, d Dialer) *SMTPSender {
	return &SMTPSender{from: from, dialer: d}
}

// SendPasswordReset implements auth.Mailer.
func (s *SMTPSender) SendPasswordReset(ctx context.Context, email, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", resetSubject)
	m.SetBody("text/plain", resetText(link))
	m.AddAlternative("text/html", resetHTML(link))

	if err := s.dialer.DialAndSend(m); err != nil {
		obs.Logger().WithFields(logrus.Fields{"to": email, "error": err}).Error("smtp_send_err")
		return fmt.Errorf("smtp send: %w", err)
	}
	obs.Logger().WithField("to", email).Info("smtp_send_ok")
	return nil
}

// LogSender writes the reset link to the log instead of sending it. Development only.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	if logger == nil {
		logger = obs.Logger()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPasswordReset(_ context.Context, email, link string) error {
	s.logger.WithFields(logrus.Fields{"to": email, "link": link}).Info("password_reset_link")
	return nil
}

func resetText(link string) string {
	return "A password reset was requested for your account.\n\n" +
		"Open the link below to choose a new password:\n" + link + "\n\n" +
		"If you did not request this, ignore this email."
}

func resetHTML(link string) string {
	return `<p>A password reset was requested for your account.</p>` +
		`<p><a href="` + html.EscapeString(link) + `">Choose a new password</a></p>` +
		`<p>If you did not request this, ignore this email.</p>`
}
