package session

import (
	"context"

	"github.com/sakif/maxed-cv/internal/model"
)

type contextKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the authenticated session loaded by Manager.Load, if any.
func FromContext(ctx context.Context) (*model.Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*model.Session)
	return sess, ok && sess != nil
}
