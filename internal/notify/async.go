package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/maxed-cv/internal/metrics"
)

const sendTimeout = 30 * time.Second

// Async makes a Notifier fire-and-forget. Every method returns nil at once;
// delivery happens on a goroutine detached from the request's cancellation,
// so a client hanging up does not abort an email already promised.
type Async struct {
	next    Notifier
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

var _ Notifier = (*Async)(nil)

func NewAsync(next Notifier, m *metrics.Metrics, logger *slog.Logger) *Async {
	return &Async{next: next, logger: logger, metrics: m}
}

func (a *Async) SendVerificationEmail(ctx context.Context, to, url string) error {
	a.dispatch(ctx, KindVerification, to, func(ctx context.Context) error {
		return a.next.SendVerificationEmail(ctx, to, url)
	})
	return nil
}

func (a *Async) SendPasswordResetEmail(ctx context.Context, to, url string) error {
	a.dispatch(ctx, KindPasswordReset, to, func(ctx context.Context) error {
		return a.next.SendPasswordResetEmail(ctx, to, url)
	})
	return nil
}

func (a *Async) SendPasswordChangedEmail(ctx context.Context, to string) error {
	a.dispatch(ctx, KindPasswordChanged, to, func(ctx context.Context) error {
		return a.next.SendPasswordChangedEmail(ctx, to)
	})
	return nil
}

func (a *Async) SendAccountDeactivatedEmail(ctx context.Context, to, name string) error {
	a.dispatch(ctx, KindAccountDeactivated, to, func(ctx context.Context) error {
		return a.next.SendAccountDeactivatedEmail(ctx, to, name)
	})
	return nil
}

func (a *Async) dispatch(ctx context.Context, kind Kind, to string, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		err := send(ctx)
		a.metrics.Notification(string(kind), err)
		if err != nil {
			a.logger.Error("notification failed",
				slog.String("kind", string(kind)),
				slog.String("to", to),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every in-flight send has finished. The server calls it
// during shutdown; tests call it before asserting.
func (a *Async) Wait() {
	a.wg.Wait()
}
