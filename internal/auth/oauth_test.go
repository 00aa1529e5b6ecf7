package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/maxed-cv/internal/model"
)

// fakeGitHub serves the token endpoint and the two REST calls Exchange makes.
func fakeGitHub(t *testing.T, user map[string]any, emails []map[string]any) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	endpoint := oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	return newGitHubProvider("client", "secret", "http://localhost/auth/github/callback", endpoint, srv.URL)
}

func TestGitHubProvider_AuthURLCarriesState(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080/auth/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, model.ProviderGitHub, p.Name())
}

func TestGitHubProvider_Exchange(t *testing.T) {
	p := fakeGitHub(t, map[string]any{
		"id": 42, "login": "octo", "name": "Octo Cat", "email": "octo@example.com", "avatar_url": "https://img/octo.png",
	}, nil)

	profile, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		Provider:   model.ProviderGitHub,
		ProviderID: "42",
		Email:      "octo@example.com",
		FirstName:  "Octo",
		LastName:   "Cat",
		AvatarURL:  "https://img/octo.png",
	}, profile)
}

func TestGitHubProvider_ExchangeFallsBackToPrimaryVerifiedEmail(t *testing.T) {
	p := fakeGitHub(t, map[string]any{"id": 7, "login": "hidden"}, []map[string]any{
		{"email": "old@example.com", "primary": false, "verified": true},
		{"email": "unverified@example.com", "primary": true, "verified": false},
	})

	_, err := p.Exchange(context.Background(), "code")
	assert.Error(t, err, "no primary+verified address means no sign-in")

	p = fakeGitHub(t, map[string]any{"id": 7, "login": "hidden"}, []map[string]any{
		{"email": "old@example.com", "primary": false, "verified": true},
		{"email": "main@example.com", "primary": true, "verified": true},
	})
	profile, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "main@example.com", profile.Email)
}

func TestGitHubProvider_ExchangeRejectsZeroID(t *testing.T) {
	p := fakeGitHub(t, map[string]any{"id": 0, "email": "x@example.com"}, nil)

	_, err := p.Exchange(context.Background(), "code")
	assert.Error(t, err)
}

func TestProfileFromClaims(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name    string
		claims  idTokenClaims
		wantErr bool
	}{
		{name: "full profile", claims: idTokenClaims{Subject: "g-1", Email: "a@x.com", EmailVerified: &yes, GivenName: "A", FamilyName: "B", Picture: "p"}},
		{name: "verified claim absent", claims: idTokenClaims{Subject: "li-1", Email: "a@x.com"}},
		{name: "missing subject", claims: idTokenClaims{Email: "a@x.com"}, wantErr: true},
		{name: "missing email", claims: idTokenClaims{Subject: "g-1"}, wantErr: true},
		{name: "unverified email", claims: idTokenClaims{Subject: "g-1", Email: "a@x.com", EmailVerified: &no}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := profileFromClaims(model.ProviderGoogle, tt.claims)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.claims.Subject, p.ProviderID)
			assert.Equal(t, tt.claims.GivenName, p.FirstName)
			assert.Equal(t, tt.claims.Picture, p.AvatarURL)
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, first, last string }{
		{"", "", ""},
		{"Ada", "Ada", ""},
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"  Ada King Lovelace ", "Ada", "King Lovelace"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = %q, %q; want %q, %q", tt.in, first, last, tt.first, tt.last)
		}
	}
}
