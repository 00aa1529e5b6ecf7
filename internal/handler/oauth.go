package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/auth"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/service"
	"github.com/sakif/maxed-cv/internal/session"
)

// stateCookieMaxAge matches the state token's own ten-minute lifetime.
const stateCookieMaxAge = 600

// OAuthHandler runs the redirect/callback pair for every configured provider.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → sign a state, drop it in a cookie, redirect to the provider
//   - HandleCallback → check the state, exchange the code, find or create the
//     user, establish a session, redirect to the frontend
//
// Callbacks are browser navigations, so failures redirect to the frontend's
// login page with ?error=<code> rather than returning JSON.
type OAuthHandler struct {
	svc         *service.AuthService
	sessions    *session.Manager
	states      *auth.StateService
	providers   map[model.Provider]auth.Provider
	frontendURL string
	secure      bool
	logger      *slog.Logger
}

func NewOAuthHandler(
	svc *service.AuthService,
	sessions *session.Manager,
	states *auth.StateService,
	providers []auth.Provider,
	frontendURL string,
	secure bool,
	logger *slog.Logger,
) *OAuthHandler {
	byName := make(map[model.Provider]auth.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &OAuthHandler{
		svc:         svc,
		sessions:    sessions,
		states:      states,
		providers:   byName,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		secure:      secure,
		logger:      logger,
	}
}

// provider resolves the {provider} URL parameter. Unknown and unconfigured
// providers are both 404.
func (h *OAuthHandler) provider(r *http.Request) (auth.Provider, bool) {
	p, ok := h.providers[model.Provider(chi.URLParam(r, "provider"))]
	return p, ok
}

// HandleLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}
func (h *OAuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		writeError(w, apperror.NotFound("provider", chi.URLParam(r, "provider")))
		return
	}

	state, err := h.states.Generate(string(p.Name()))
	if err != nil {
		writeError(w, apperror.Internal("could not start sign-in", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the flow.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. ?state must equal the state cookie and verify for this provider
//  2. Exchange the code for a profile
//  3. Find, link, or create the user (AuthService.FindOrCreateOAuthUser)
//  4. Refuse deactivated accounts
//  5. Establish a new session and redirect to the dashboard
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		writeError(w, apperror.NotFound("provider", chi.URLParam(r, "provider")))
		return
	}
	q := r.URL.Query()

	// --- Step 1: Validate state ---
	cookie, err := r.Cookie(auth.StateCookieName)
	h.clearStateCookie(w)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", string(p.Name())))
		h.fail(w, r, "invalid_state")
		return
	}
	if err := h.states.Validate(cookie.Value, string(p.Name())); err != nil {
		h.logger.Warn("oauth callback: invalid state",
			slog.String("provider", string(p.Name())),
			slog.Any("error", err),
		)
		h.fail(w, r, "invalid_state")
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied",
			slog.String("provider", string(p.Name())),
			slog.String("error", errParam),
		)
		h.fail(w, r, "access_denied")
		return
	}

	// --- Step 2: Exchange the code ---
	code := q.Get("code")
	if code == "" {
		h.fail(w, r, "missing_code")
		return
	}
	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed",
			slog.String("provider", string(p.Name())),
			slog.Any("error", err),
		)
		h.fail(w, r, "exchange_failed")
		return
	}

	// --- Step 3: Resolve the user ---
	user, err := h.svc.FindOrCreateOAuthUser(r.Context(), profile)
	if err != nil {
		h.logger.Error("oauth callback: user resolution failed",
			slog.String("provider", string(p.Name())),
			slog.Any("error", err),
		)
		reason := "server_error"
		if errors.Is(err, apperror.ErrConflict) {
			reason = "account_conflict"
		}
		h.fail(w, r, reason)
		return
	}

	// --- Step 4: Deactivated accounts do not get a session ---
	if user.IsDeactivated() {
		h.fail(w, r, "account_deactivated")
		return
	}

	// --- Step 5: Session ---
	if _, err := h.sessions.Establish(w, r, user.ID, false); err != nil {
		h.logger.Error("oauth callback: session failed", slog.Any("error", err))
		h.fail(w, r, "session_error")
		return
	}

	h.logger.Info("user authenticated via oauth",
		slog.String("userID", user.ID),
		slog.String("provider", string(p.Name())),
	)
	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusSeeOther)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.frontendURL+"/login?error="+url.QueryEscape(reason), http.StatusSeeOther)
}

func (h *OAuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
