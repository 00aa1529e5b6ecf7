package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/maxed-cv/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingMailer captures every message and can be told to fail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// ===== Rendering =====

func TestRenderVerification(t *testing.T) {
	msg, err := Render(KindVerification, "a@x.io", map[string]string{"URL": "https://app.test/verify-email/abc"})
	require.NoError(t, err)

	assert.Equal(t, "a@x.io", msg.To)
	assert.Equal(t, "Verify your email address", msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://app.test/verify-email/abc"`)
}

func TestRenderEscapesName(t *testing.T) {
	msg, err := Render(KindAccountDeactivated, "a@x.io", map[string]string{"Name": "<script>alert(1)</script>"})
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(Kind("nope"), "a@x.io", nil)
	assert.Error(t, err)
}

func TestEveryKindHasTemplateAndSubject(t *testing.T) {
	for _, kind := range []Kind{KindVerification, KindPasswordReset, KindPasswordChanged, KindAccountDeactivated} {
		t.Run(string(kind), func(t *testing.T) {
			msg, err := Render(kind, "a@x.io", map[string]string{"URL": "u", "Name": "n"})
			require.NoError(t, err)
			assert.NotEmpty(t, msg.Subject)
			assert.NotEmpty(t, msg.HTML)
		})
	}
}

// ===== EmailNotifier =====

func TestEmailNotifierSends(t *testing.T) {
	mailer := &recordingMailer{}
	n := NewEmailNotifier(mailer)
	ctx := context.Background()

	require.NoError(t, n.SendVerificationEmail(ctx, "a@x.io", "https://app.test/verify-email/t1"))
	require.NoError(t, n.SendPasswordResetEmail(ctx, "a@x.io", "https://app.test/reset-password/t2"))
	require.NoError(t, n.SendPasswordChangedEmail(ctx, "a@x.io"))
	require.NoError(t, n.SendAccountDeactivatedEmail(ctx, "a@x.io", "Ada Lovelace"))

	sent := mailer.messages()
	require.Len(t, sent, 4)
	assert.Equal(t, KindVerification, sent[0].Kind)
	assert.Contains(t, sent[1].HTML, "reset-password/t2")
	assert.Equal(t, KindPasswordChanged, sent[2].Kind)
	assert.Contains(t, sent[3].HTML, "Ada Lovelace")
}

func TestEmailNotifierReturnsMailerError(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	n := NewEmailNotifier(mailer)

	err := n.SendPasswordChangedEmail(context.Background(), "a@x.io")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}

// ===== SMTPMailer =====

func TestSMTPMailerFormatsMessage(t *testing.T) {
	m := NewSMTPMailer("smtp.test", 587, "noreply@maxed.cv", "user", "pass")

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotBody string
	)
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotBody = addr, a, from, to, string(msg)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "a@x.io", Subject: "Hi\r\nBcc: evil@x.io", HTML: "<p>body</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@maxed.cv", gotFrom)
	assert.Equal(t, []string{"a@x.io"}, gotTo)
	assert.Contains(t, gotBody, "Subject: HiBcc: evil@x.io\r\n")
	assert.Contains(t, gotBody, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(gotBody, "\r\n\r\n<p>body</p>"))
}

func TestSMTPMailerNoAuthWithoutUsername(t *testing.T) {
	m := NewSMTPMailer("localhost", 1025, "noreply@maxed.cv", "", "")
	called := false
	m.sendMail = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		called = true
		assert.Nil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "a@x.io"}))
	assert.True(t, called)
}

func TestSMTPMailerHonoursCancelledContext(t *testing.T) {
	m := NewSMTPMailer("localhost", 1025, "noreply@maxed.cv", "", "")
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "a@x.io"}), context.Canceled)
}

func TestLogMailerNeverFails(t *testing.T) {
	m := NewLogMailer(testLogger())
	assert.NoError(t, m.Send(context.Background(), Message{Kind: KindPasswordReset, To: "a@x.io"}))
}

// ===== Async =====

func TestAsyncDeliversInBackground(t *testing.T) {
	mailer := &recordingMailer{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := NewAsync(NewEmailNotifier(mailer), m, testLogger())

	require.NoError(t, a.SendVerificationEmail(context.Background(), "a@x.io", "https://app.test/verify-email/t"))
	a.Wait()

	require.Len(t, mailer.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("verification", metrics.OutcomeSuccess)))
}

func TestAsyncSwallowsFailures(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := NewAsync(NewEmailNotifier(mailer), m, testLogger())

	assert.NoError(t, a.SendPasswordResetEmail(context.Background(), "a@x.io", "u"))
	assert.NoError(t, a.SendPasswordChangedEmail(context.Background(), "a@x.io"))
	assert.NoError(t, a.SendAccountDeactivatedEmail(context.Background(), "a@x.io", "Ada"))
	a.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("password_reset", metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("password_changed", metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("account_deactivated", metrics.OutcomeFailure)))
}

func TestAsyncSurvivesCancelledRequest(t *testing.T) {
	mailer := &recordingMailer{}
	a := NewAsync(NewEmailNotifier(mailer), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.SendPasswordChangedEmail(ctx, "a@x.io"))
	cancel()
	a.Wait()

	assert.Len(t, mailer.messages(), 1)
}
