package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/model"
)

// DefaultCookieName is the session cookie's name.
const DefaultCookieName = "maxedcv.sid"

// DefaultAbsoluteTTL caps a session's age regardless of activity.
const DefaultAbsoluteTTL = 7 * 24 * time.Hour

// ManagerConfig holds cookie and lifetime settings.
type ManagerConfig struct {
	CookieName  string
	Secure      bool // set in production (HTTPS only)
	AbsoluteTTL time.Duration
}

// Manager is the HTTP boundary for sessions: it reads the cookie, enforces
// the absolute lifetime, and owns the login/logout cookie transitions.
type Manager struct {
	store    *Store
	governor *Governor
	cfg      ManagerConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store *Store, governor *Governor, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.AbsoluteTTL <= 0 {
		cfg.AbsoluteTTL = DefaultAbsoluteTTL
	}
	return &Manager{store: store, governor: governor, cfg: cfg, logger: logger, now: time.Now}
}

// Load attaches the caller's session to the request context.
//
// A request without a usable session continues anonymously; it is never
// rejected here. Routes that need a user sit behind auth.RequireAuth.
//
// ABSOLUTE EXPIRY:
// Load slides the record's TTL on every request, so an active session would
// otherwise live forever. Once CreatedAt is older than AbsoluteTTL the record
// is destroyed, whatever its remaining TTL.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cfg.CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sess, err := m.store.Get(ctx, cookie.Value)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.logger.Error("loading session", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}

		if sess.ExceedsAbsoluteLifetime(m.now(), m.cfg.AbsoluteTTL) {
			m.logger.Info("session exceeded absolute lifetime",
				slog.String("user_id", sess.UserID),
				slog.String("session", shortID(sess.ID)),
			)
			m.governor.Untrack(ctx, sess.UserID, sess.ID)
			if _, err := m.store.Delete(ctx, sess.ID); err != nil {
				m.logger.Error("destroying expired session", slog.Any("error", err))
			}
			m.clearCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		// Slide the server-side TTL, and keep the browser's copy in step.
		// The session is still valid if the refresh fails; the next request retries.
		if err := m.store.Touch(ctx, sess); err != nil {
			m.logger.Warn("refreshing session expiry",
				slog.String("session", shortID(sess.ID)),
				slog.Any("error", err),
			)
		}
		m.setCookie(w, sess)
		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

// Establish performs the post-authentication session transition:
//
//  1. destroy the pre-login session, if any (fixation defense)
//  2. mint a fresh id bound to userID, stamped with the creation time
//  3. persist it
//  4. only then hand the cookie to the client
//  5. register it with the governor (best-effort)
//
// Any failure in 1-3 returns an Internal error and sets no cookie, so the
// client never holds an id for a session that was not saved.
func (m *Manager) Establish(w http.ResponseWriter, r *http.Request, userID string, remember bool) (*model.Session, error) {
	ctx := r.Context()

	if priorID := m.currentID(r); priorID != "" {
		if prior, ok := FromContext(ctx); ok {
			m.governor.Untrack(ctx, prior.UserID, prior.ID)
		}
		if _, err := m.store.Delete(ctx, priorID); err != nil {
			return nil, apperror.Internal("session error", err)
		}
	}

	id, err := NewID()
	if err != nil {
		return nil, apperror.Internal("session error", err)
	}

	sess := &model.Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  m.now().UTC(),
		RememberMe: remember,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, apperror.Internal("session error", err)
	}

	m.setCookie(w, sess)
	m.governor.Track(ctx, userID, sess.ID, sess.CreatedAt)
	return sess, nil
}

// Destroy ends the current session. Tracking and store failures are logged;
// the cookie is cleared no matter what.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer m.clearCookie(w)

	if sess, ok := FromContext(ctx); ok {
		m.governor.Untrack(ctx, sess.UserID, sess.ID)
	}
	id := m.currentID(r)
	if id == "" {
		return
	}
	if _, err := m.store.Delete(ctx, id); err != nil {
		m.logger.Error("destroying session", slog.String("session", shortID(id)), slog.Any("error", err))
	}
}

// currentID prefers the loaded session and falls back to the raw cookie.
func (m *Manager) currentID(r *http.Request) string {
	if sess, ok := FromContext(r.Context()); ok {
		return sess.ID
	}
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (m *Manager) setCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.store.TTL(sess).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
