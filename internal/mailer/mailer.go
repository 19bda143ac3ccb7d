// Package mailer sends notification e-mails for jobs that report fills or
// alerts, mirroring the original's mail.py send_mail.
package mailer

import (
	"fmt"
	"net/smtp"
)

// Mailer is the narrow notification surface a job needs.
type Mailer interface {
	Send(subject, body string) error
}

// Config mirrors the [mail] config section.
type Config struct {
	Server      string
	Port        int
	User        string
	Pass        string
	Sender      string
	Recipient   string
	SubjectDesc string
}

// SMTP sends mail with net/smtp's SendMail: a plain connection, upgraded
// with STARTTLS when the server offers it. Implicit TLS (SMTPS) is not used.
type SMTP struct {
	cfg Config
}

// New returns an SMTP Mailer for cfg.
func New(cfg Config) *SMTP {
	return &SMTP{cfg: cfg}
}

func (m *SMTP) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Server)

	fullSubject := subject
	if m.cfg.SubjectDesc != "" {
		fullSubject = fmt.Sprintf("[%s] %s", m.cfg.SubjectDesc, subject)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.Sender, m.cfg.Recipient, fullSubject, body)

	return smtp.SendMail(addr, auth, m.cfg.Sender, []string{m.cfg.Recipient}, []byte(msg))
}

// NoOp is used when no [mail] section is configured; Send is a silent
// no-op so jobs can call it unconditionally.
type NoOp struct{}

func (NoOp) Send(subject, body string) error { return nil }
