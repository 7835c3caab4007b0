package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// sendMail is a seam for tests. smtp.SendMail upgrades to STARTTLS when the
// server offers it.
var sendMail = smtp.SendMail

// SMTPMailer sends plain text mail through an authenticated relay.
type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
	logger   logging.Logger
	now      func() time.Time
}

func NewSMTPMailer(host string, port int, user, password, from string, logger logging.Logger) *SMTPMailer {
	if from == "" {
		from = user
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		logger:   logger.With("module", "mailer"),
		now:      time.Now,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, tmpl, to string, params map[string]string) error {
	subject, body, err := Render(tmpl, params)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	msg := m.message(to, subject, body)

	send := sendMail
	done := make(chan error, 1)
	go func() { done <- send(addr, auth, m.from, []string{to}, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info(ctx, "mail sent", "to", to, "template", tmpl)
	return nil
}

func (m *SMTPMailer) message(to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return b.Bytes()
}
