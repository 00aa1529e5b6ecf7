package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPMailer sends mail through an SMTP relay with optional PLAIN auth.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string

	// sendMail is smtp.SendMail; tests swap it out.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host string, port int, from, username, password string) *SMTPMailer {
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		From:     from,
		Username: username,
		Password: password,
		sendMail: smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	return m.sendMail(addr, auth, m.From, []string{msg.To}, m.format(msg))
}

// format builds an RFC 5322 message with an HTML body. Header values come
// from our own config and a validated address, so CR/LF are stripped rather
// than encoded.
func (m *SMTPMailer) format(msg Message) []byte {
	clean := strings.NewReplacer("\r", "", "\n", "")
	var b strings.Builder
	b.WriteString("From: " + clean.Replace(m.From) + "\r\n")
	b.WriteString("To: " + clean.Replace(msg.To) + "\r\n")
	b.WriteString("Subject: " + clean.Replace(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogMailer records that a message would have been sent. Used when no SMTP
// relay is configured. The body is not logged: it carries live tokens.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email not sent (no SMTP configured)",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
