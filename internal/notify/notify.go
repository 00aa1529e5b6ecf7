// Package notify sends the transactional emails of the auth flows.
//
// Two layers:
//   - EmailNotifier renders a template and hands the message to a Mailer
//     (SMTP in production, the log in development). Errors are returned.
//   - Async wraps any Notifier and makes every send fire-and-forget: it runs
//     in its own goroutine, failures are logged and counted, and the caller
//     never sees them.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

// Kind names a notification; it is also the template name and the metrics label.
type Kind string

const (
	KindVerification       Kind = "verification"
	KindPasswordReset      Kind = "password_reset"
	KindPasswordChanged    Kind = "password_changed"
	KindAccountDeactivated Kind = "account_deactivated"
)

var subjects = map[Kind]string{
	KindVerification:       "Verify your email address",
	KindPasswordReset:      "Reset your password",
	KindPasswordChanged:    "Your password has been changed",
	KindAccountDeactivated: "Your account has been deactivated",
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Notifier is the outbound email contract of the auth flows.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, url string) error
	SendPasswordResetEmail(ctx context.Context, to, url string) error
	SendPasswordChangedEmail(ctx context.Context, to string) error
	SendAccountDeactivatedEmail(ctx context.Context, to, name string) error
}

// Message is a rendered email.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmailNotifier renders templates and delivers them through a Mailer.
type EmailNotifier struct {
	mailer Mailer
}

var _ Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(mailer Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer}
}

func (n *EmailNotifier) SendVerificationEmail(ctx context.Context, to, url string) error {
	return n.send(ctx, KindVerification, to, map[string]string{"URL": url})
}

func (n *EmailNotifier) SendPasswordResetEmail(ctx context.Context, to, url string) error {
	return n.send(ctx, KindPasswordReset, to, map[string]string{"URL": url})
}

func (n *EmailNotifier) SendPasswordChangedEmail(ctx context.Context, to string) error {
	return n.send(ctx, KindPasswordChanged, to, nil)
}

func (n *EmailNotifier) SendAccountDeactivatedEmail(ctx context.Context, to, name string) error {
	return n.send(ctx, KindAccountDeactivated, to, map[string]string{"Name": name})
}

func (n *EmailNotifier) send(ctx context.Context, kind Kind, to string, data any) error {
	msg, err := Render(kind, to, data)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: sending %s to %s: %w", kind, to, err)
	}
	return nil
}

// Render executes the template for kind. html/template escapes data, so a
// name like "<script>" arrives as text.
func Render(kind Kind, to string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return Message{}, fmt.Errorf("notify: rendering %s: %w", kind, err)
	}
	return Message{Kind: kind, To: to, Subject: subjects[kind], HTML: buf.String()}, nil
}
