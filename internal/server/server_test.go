package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/maxed-cv/internal/auth"
	"github.com/sakif/maxed-cv/internal/config"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/notify"
	"github.com/sakif/maxed-cv/internal/repository/sqlite"
	"github.com/sakif/maxed-cv/internal/session"
)

// These tests drive the whole router: real handlers, service, token issuer
// and session code over an in-memory SQLite database and miniredis. Only the
// mail transport and the OAuth provider are fakes.

const (
	testFrontend = "http://app.test"
	testPassword = "correct-horse-battery"
)

// ===== FAKES =====

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count(kind notify.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

var linkPattern = regexp.MustCompile(`/(?:verify-email|reset-password)/([A-Za-z0-9_-]+)`)

// lastSecret returns the token from the newest email of the given kind.
func (m *recordingMailer) lastSecret(t *testing.T, kind notify.Kind) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind != kind {
			continue
		}
		match := linkPattern.FindStringSubmatch(m.sent[i].HTML)
		require.NotNil(t, match, "no link in %s email", kind)
		return match[1]
	}
	t.Fatalf("no %s email sent", kind)
	return ""
}

type fakeProvider struct {
	profile *auth.Profile
}

func (p *fakeProvider) Name() model.Provider { return model.ProviderGitHub }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*auth.Profile, error) {
	if code != "good-code" {
		return nil, fmt.Errorf("bad code %q", code)
	}
	return p.profile, nil
}

// ===== TEST SERVER =====

type testEnv struct {
	srv    *Server
	mr     *miniredis.Miniredis
	mailer *recordingMailer
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Env = config.EnvTest
	cfg.FrontendURL = testFrontend
	cfg.SessionSecret = strings.Repeat("s", config.MinSecretLength)
	cfg.BcryptCost = 4
	cfg.EnumerationDelay = time.Millisecond
	cfg.Session.MaxSessions = 3
	cfg.Session.IdleTTL = time.Hour
	cfg.Session.RememberTTL = 30 * 24 * time.Hour
	cfg.Session.AbsoluteTTL = 7 * 24 * time.Hour
	cfg.Tokens.VerificationTTL = 24 * time.Hour
	cfg.Tokens.ResetTTL = time.Hour
	cfg.RateLimit.General = config.RateLimit{Requests: 1000, Window: time.Minute}
	cfg.RateLimit.Signup = config.RateLimit{Requests: 100, Window: time.Minute}
	cfg.RateLimit.Sensitive = config.RateLimit{Requests: 100, Window: time.Minute}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)

	mailer := &recordingMailer{}
	provider := &fakeProvider{profile: &auth.Profile{
		Provider:   model.ProviderGitHub,
		ProviderID: "gh-42",
		Email:      "octo@example.com",
		FirstName:  "Octo",
		LastName:   "Cat",
	}}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := NewWithDeps(cfg, Deps{
		Store:     store,
		Redis:     rdb,
		Mailer:    mailer,
		Providers: []auth.Provider{provider},
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return &testEnv{srv: srv, mr: mr, mailer: mailer}
}

// client carries cookies between requests the way a browser would.
type client struct {
	env     *testEnv
	cookies map[string]string
}

func (e *testEnv) client() *client {
	return &client{env: e, cookies: map[string]string{}}
}

func (c *client) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	c.env.srv.Handler().ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}
	// Emails go out on background goroutines.
	c.env.srv.notifier.Wait()
	return rec
}

func (c *client) sessionID() string {
	return c.cookies[session.DefaultCookieName]
}

func (c *client) signup(t *testing.T, email string) {
	t.Helper()
	rec := c.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email":     email,
		"password":  testPassword,
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (c *client) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	return c.do(t, http.MethodPost, "/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
}

func (c *client) me(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	return c.do(t, http.MethodGet, "/auth/me", nil)
}

type meBody struct {
	ID            string                   `json:"id"`
	Email         string                   `json:"email"`
	Name          string                   `json:"name"`
	EmailVerified bool                     `json:"emailVerified"`
	Providers     []model.CredentialMethod `json:"providers"`
}

func decodeMe(t *testing.T, rec *httptest.ResponseRecorder) meBody {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body meBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ===== END TO END =====

func TestSignupVerifyLogin(t *testing.T) {
	env := newTestServer(t, testConfig())
	browser := env.client()

	browser.signup(t, "ada@example.com")
	signupSession := browser.sessionID()
	require.NotEmpty(t, signupSession, "signup logs the user in")
	assert.Equal(t, 1, env.mailer.count(notify.KindVerification))

	me := decodeMe(t, browser.me(t))
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, "Ada Lovelace", me.Name)
	assert.False(t, me.EmailVerified)

	rec := browser.do(t, http.MethodPost, "/auth/verify-email", map[string]string{
		"token": env.mailer.lastSecret(t, notify.KindVerification),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, signupSession, browser.sessionID(), "verification starts a fresh session")
	assert.True(t, decodeMe(t, browser.me(t)).EmailVerified)

	other := env.client()
	rec = other.login(t, "ada@example.com", testPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, other.sessionID())
	assert.NotEqual(t, browser.sessionID(), other.sessionID())
}

func TestLoginReplacesPreLoginSession(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	before := c.sessionID()

	rec := c.login(t, "ada@example.com", testPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, before, c.sessionID())

	// The old id must be dead, not merely replaced in this client.
	stale := env.client()
	stale.cookies[session.DefaultCookieName] = before
	assert.Equal(t, http.StatusUnauthorized, stale.me(t).Code)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	env := newTestServer(t, testConfig())
	env.client().signup(t, "ada@example.com")

	wrongPassword := env.client().login(t, "ada@example.com", "not-the-password")
	unknownEmail := env.client().login(t, "nobody@example.com", testPassword)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLogout(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	id := c.sessionID()

	rec := c.do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, c.sessionID())
	assert.False(t, env.mr.Exists("sess:"+id))

	// Logging out without a session still succeeds.
	rec = env.client().do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	env := newTestServer(t, testConfig())
	rec := env.client().me(t)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unauthorized"`)
}

// ===== SESSIONS =====

func TestPasswordResetInvalidatesEverySession(t *testing.T) {
	env := newTestServer(t, testConfig())
	laptop := env.client()
	laptop.signup(t, "ada@example.com")
	phone := env.client()
	require.Equal(t, http.StatusOK, phone.login(t, "ada@example.com", testPassword).Code)

	rec := env.client().do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.client().do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token":    env.mailer.lastSecret(t, notify.KindPasswordReset),
		"password": "a-brand-new-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.mailer.count(notify.KindPasswordChanged))

	assert.Equal(t, http.StatusUnauthorized, laptop.me(t).Code)
	assert.Equal(t, http.StatusUnauthorized, phone.me(t).Code)

	assert.Equal(t, http.StatusUnauthorized, env.client().login(t, "ada@example.com", testPassword).Code)
	assert.Equal(t, http.StatusOK, env.client().login(t, "ada@example.com", "a-brand-new-password").Code)
}

func TestForgotPasswordUnknownEmailLooksTheSame(t *testing.T) {
	env := newTestServer(t, testConfig())
	env.client().signup(t, "ada@example.com")

	known := env.client().do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ada@example.com"})
	unknown := env.client().do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ghost@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, 1, env.mailer.count(notify.KindPasswordReset))
}

func TestConcurrentSessionCapEvictsOldest(t *testing.T) {
	env := newTestServer(t, testConfig())

	first := env.client()
	first.signup(t, "ada@example.com")

	var later []*client
	for i := 0; i < 3; i++ {
		// Sessions are ordered by creation time in milliseconds.
		time.Sleep(5 * time.Millisecond)
		c := env.client()
		require.Equal(t, http.StatusOK, c.login(t, "ada@example.com", testPassword).Code)
		later = append(later, c)
	}

	assert.Equal(t, http.StatusUnauthorized, first.me(t).Code, "oldest session evicted")
	for i, c := range later {
		assert.Equal(t, http.StatusOK, c.me(t).Code, "session %d", i)
	}
}

func TestAbsoluteLifetimeEndsActiveSession(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	require.Equal(t, http.StatusOK, c.me(t).Code)

	// Age the record past the absolute cap while it is still live in Redis.
	id := c.sessionID()
	var stored map[string]any
	raw, err := env.mr.Get("sess:" + id)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	stored["createdAt"] = time.Now().Add(-8 * 24 * time.Hour).UTC().Format(time.RFC3339Nano)
	aged, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, env.mr.Set("sess:"+id, string(aged)))

	assert.Equal(t, http.StatusUnauthorized, c.me(t).Code)
	assert.False(t, env.mr.Exists("sess:"+id))
}

func TestIdleSessionExpires(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")

	env.mr.FastForward(2 * time.Hour)
	assert.Equal(t, http.StatusUnauthorized, c.me(t).Code)
}

// ===== ACCOUNT LIFECYCLE =====

func TestDeactivate(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	other := env.client()
	require.Equal(t, http.StatusOK, other.login(t, "ada@example.com", testPassword).Code)

	rec := c.do(t, http.MethodPost, "/auth/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, c.sessionID())
	assert.Equal(t, 1, env.mailer.count(notify.KindAccountDeactivated))

	assert.Equal(t, http.StatusUnauthorized, other.me(t).Code, "every session ends")

	rec = env.client().login(t, "ada@example.com", testPassword)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Signing up again with the same email brings the account back.
	again := env.client()
	again.signup(t, "ada@example.com")
	assert.Equal(t, http.StatusOK, again.me(t).Code)
}

func TestResendVerification(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	first := env.mailer.lastSecret(t, notify.KindVerification)

	rec := c.do(t, http.MethodPost, "/auth/resend-verification", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := env.mailer.lastSecret(t, notify.KindVerification)
	assert.NotEqual(t, first, second)

	rec = c.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": first})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "superseded token")

	rec = c.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": second})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(t, http.MethodPost, "/auth/resend-verification", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already verified")
}

func TestResendVerificationRequiresSession(t *testing.T) {
	env := newTestServer(t, testConfig())
	rec := env.client().do(t, http.MethodPost, "/auth/resend-verification", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ===== OAUTH =====

func (c *client) oauthCallback(t *testing.T, query string) *httptest.ResponseRecorder {
	t.Helper()
	return c.do(t, http.MethodGet, "/auth/github/callback?"+query, nil)
}

func TestOAuthLoginCreatesVerifiedUser(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()

	rec := c.do(t, http.MethodGet, "/auth/github", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := c.cookies[auth.StateCookieName]
	require.NotEmpty(t, state)
	assert.Contains(t, rec.Header().Get("Location"), url.QueryEscape(state))

	rec = c.oauthCallback(t, "code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, testFrontend+"/dashboard", rec.Header().Get("Location"))
	assert.Empty(t, c.cookies[auth.StateCookieName], "state cookie is single use")

	me := decodeMe(t, c.me(t))
	assert.Equal(t, "octo@example.com", me.Email)
	assert.True(t, me.EmailVerified)
	assert.Equal(t, []model.CredentialMethod{
		{Kind: model.CredentialOAuth, Provider: model.ProviderGitHub},
	}, me.Providers)
}

func TestOAuthLinksExistingPasswordAccount(t *testing.T) {
	env := newTestServer(t, testConfig())
	env.client().signup(t, "octo@example.com")

	c := env.client()
	c.do(t, http.MethodGet, "/auth/github", nil)
	rec := c.oauthCallback(t, "code=good-code&state="+url.QueryEscape(c.cookies[auth.StateCookieName]))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, testFrontend+"/dashboard", rec.Header().Get("Location"))

	me := decodeMe(t, c.me(t))
	assert.Len(t, me.Providers, 2)

	// The password still works after linking.
	assert.Equal(t, http.StatusOK, env.client().login(t, "octo@example.com", testPassword).Code)
}

func TestOAuthCallbackFailures(t *testing.T) {
	tests := []struct {
		name       string
		query      func(state string) string
		dropCookie bool
		wantReason string
	}{
		{
			name:       "state mismatch",
			query:      func(string) string { return "code=good-code&state=forged" },
			wantReason: "invalid_state",
		},
		{
			name:       "missing state cookie",
			query:      func(s string) string { return "code=good-code&state=" + url.QueryEscape(s) },
			dropCookie: true,
			wantReason: "invalid_state",
		},
		{
			name:       "provider error",
			query:      func(s string) string { return "error=access_denied&state=" + url.QueryEscape(s) },
			wantReason: "access_denied",
		},
		{
			name:       "missing code",
			query:      func(s string) string { return "state=" + url.QueryEscape(s) },
			wantReason: "missing_code",
		},
		{
			name:       "exchange failure",
			query:      func(s string) string { return "code=bad-code&state=" + url.QueryEscape(s) },
			wantReason: "exchange_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t, testConfig())
			c := env.client()
			c.do(t, http.MethodGet, "/auth/github", nil)
			state := c.cookies[auth.StateCookieName]
			require.NotEmpty(t, state)
			if tt.dropCookie {
				delete(c.cookies, auth.StateCookieName)
			}

			rec := c.oauthCallback(t, tt.query(state))
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, testFrontend+"/login?error="+tt.wantReason, rec.Header().Get("Location"))
			assert.Empty(t, c.sessionID())
		})
	}
}

func TestOAuthUnknownProvider(t *testing.T) {
	env := newTestServer(t, testConfig())
	rec := env.client().do(t, http.MethodGet, "/auth/google", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuthRefusesDeactivatedAccount(t *testing.T) {
	env := newTestServer(t, testConfig())
	owner := env.client()
	owner.signup(t, "octo@example.com")
	require.Equal(t, http.StatusOK, owner.do(t, http.MethodPost, "/auth/deactivate", nil).Code)

	c := env.client()
	c.do(t, http.MethodGet, "/auth/github", nil)
	rec := c.oauthCallback(t, "code=good-code&state="+url.QueryEscape(c.cookies[auth.StateCookieName]))
	assert.Equal(t, testFrontend+"/login?error=account_deactivated", rec.Header().Get("Location"))
	assert.Empty(t, c.sessionID())
}

// ===== OPERATIONAL =====

func TestRateLimitedSignup(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Signup = config.RateLimit{Requests: 1, Window: time.Minute}
	env := newTestServer(t, cfg)

	env.client().signup(t, "ada@example.com")

	rec := env.client().do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email":     "grace@example.com",
		"password":  testPassword,
		"firstName": "Grace",
		"lastName":  "Hopper",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other routes have their own budget.
	assert.Equal(t, http.StatusOK, env.client().login(t, "ada@example.com", testPassword).Code)
}

func TestHealth(t *testing.T) {
	env := newTestServer(t, testConfig())

	rec := env.client().do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, body.Checks)

	env.mr.Close()
	rec = env.client().do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unavailable", body.Checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")
	c.login(t, "ada@example.com", "wrong-password")

	rec := c.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `route="/auth/signup"`)
	assert.Contains(t, body, "go_goroutines")
	assert.Regexp(t, `event="login",outcome="failure"`, body)
}

func TestCORSPreflightForFrontend(t *testing.T) {
	env := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", testFrontend)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testFrontend, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSRejectsOtherOrigins(t *testing.T) {
	env := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSHeadersOnCredentialedRequest(t *testing.T) {
	env := newTestServer(t, testConfig())
	c := env.client()
	c.signup(t, "ada@example.com")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Origin", testFrontend)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: c.sessionID()})
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testFrontend, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
