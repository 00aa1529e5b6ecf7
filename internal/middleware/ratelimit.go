package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/maxed-cv/internal/metrics"
	"github.com/sakif/maxed-cv/internal/session"
)

// RateLimiter is a fixed-window counter in Redis.
//
// HOW IT WORKS:
// Each (limiter, client) pair gets a key "rl:<name>:<client>". The first
// request in a window INCRs it to 1 and sets the expiry; later requests only
// INCR. Once the count passes the limit, requests get 429 until the key
// expires.
//
// The client is "user:<id>" when a session is loaded, otherwise "ip:<addr>",
// so a logged-in user keeps one budget across networks. This middleware must
// therefore run after session.Manager.Load.
//
// Redis errors fail open: a limiter outage must not take the API down.
type RateLimiter struct {
	rdb     redis.Cmdable
	name    string
	limit   int64
	window  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRateLimiter(rdb redis.Cmdable, name string, limit int, window time.Duration, m *metrics.Metrics, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		name:    name,
		limit:   int64(limit),
		window:  window,
		metrics: m,
		logger:  logger,
	}
}

// Handler is the middleware.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)

		allowed, retryAfter, err := l.allow(r.Context(), key)
		if err != nil {
			l.logger.Warn("rate limiter unavailable, allowing request",
				slog.String("limiter", l.name),
				slog.Any("error", err),
			)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			l.metrics.RateLimited(l.name)
			l.logger.Info("rate limited",
				slog.String("limiter", l.name),
				slog.String("client", clientID(r)),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too_many_requests","message":"too many requests, please try again later"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) key(r *http.Request) string {
	return fmt.Sprintf("rl:%s:%s", l.name, clientID(r))
}

// allow counts this request and reports whether it is within the limit. When
// it is not, retryAfter is the time left in the window.
func (l *RateLimiter) allow(ctx context.Context, key string) (bool, time.Duration, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		// A key left without an expiry (crash between INCR and EXPIRE)
		// would block the client forever; give it one now.
		_ = l.rdb.Expire(ctx, key, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}

// clientID keys by session user when there is one, else by address.
func clientID(r *http.Request) string {
	if sess, ok := session.FromContext(r.Context()); ok && sess.UserID != "" {
		return "user:" + sess.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// chi's RealIP rewrites RemoteAddr to a bare IP.
		host = r.RemoteAddr
	}
	return "ip:" + host
}
