package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/maxed-cv/internal/model"
)

// Profile is what a provider tells us about the person who just signed in.
// Only ProviderID and Email are guaranteed.
type Profile struct {
	Provider   model.Provider
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
}

// Provider is one external identity provider using the Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. Your server redirects the user to the provider's authorization endpoint,
//    with your ClientID and the requested scopes.
// 2. The user approves (or denies) the authorization request.
// 3. The provider redirects back to your CallbackURL with a short-lived "code".
// 4. Your server exchanges the code for an access token (server-to-server call).
// 5. Your server uses the token (or the OIDC ID token) to learn who the user is.
//
// WHY SERVER-SIDE EXCHANGE?
// The code-for-token exchange happens server-to-server, using your ClientSecret.
// The access token never touches the client's browser.
type Provider interface {
	Name() model.Provider
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// gitHubUser is the portion of the GitHub /user API response we care about.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type gitHubUser struct {
	ID        int64  `json:"id"`         // GitHub's numeric user ID: stable, never changes
	Login     string `json:"login"`      // GitHub username
	Name      string `json:"name"`       // Display name, free text
	Email     string `json:"email"`      // Public email (empty if hidden in GitHub settings)
	AvatarURL string `json:"avatar_url"` // Profile picture URL
}

// gitHubEmail is one entry of GET /user/emails.
type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider wraps golang.org/x/oauth2 for GitHub, which is plain OAuth2
// (no ID token), so identity comes from the REST API.
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string
}

// NewGitHubProvider creates a GitHubProvider with the given credentials.
//
// You get ClientID and ClientSecret by registering an OAuth App at:
// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
//
// callbackURL must match the "Authorization callback URL" you configured exactly.
// Example: "http://localhost:8080/auth/github/callback"
//
// Scopes we request:
//   - "read:user": access to the user's public profile (ID, login, avatar)
//   - "user:email": access to the user's email addresses, including private ones
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return newGitHubProvider(clientID, clientSecret, callbackURL, github.Endpoint, "https://api.github.com")
}

func newGitHubProvider(clientID, clientSecret, callbackURL string, endpoint oauth2.Endpoint, apiURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiURL: strings.TrimRight(apiURL, "/"),
	}
}

func (p *GitHubProvider) Name() model.Provider { return model.ProviderGitHub }

// AuthURL returns the URL to redirect the user to for authorization.
// state is echoed back on the callback and checked against the state cookie.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for a
// GitHub profile.
//
// Steps:
//  1. Exchange the code for an OAuth access token (server-to-server)
//  2. Call GitHub's /user API with the token
//  3. If the profile email is hidden, fall back to the primary verified
//     address from /user/emails
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that automatically adds
	// the "Authorization: Bearer <token>" header to every request.
	client := p.config.Client(ctx, oauthToken)

	var ghUser gitHubUser
	if err := p.getJSON(client, "/user", &ghUser); err != nil {
		return nil, err
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	email := ghUser.Email
	if email == "" {
		var emails []gitHubEmail
		if err := p.getJSON(client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}
	if email == "" {
		return nil, fmt.Errorf("auth: GitHub account has no verified primary email")
	}

	first, last := splitName(ghUser.Name)
	return &Profile{
		Provider:   model.ProviderGitHub,
		ProviderID: strconv.FormatInt(ghUser.ID, 10),
		Email:      email,
		FirstName:  first,
		LastName:   last,
		AvatarURL:  ghUser.AvatarURL,
	}, nil
}

func (p *GitHubProvider) getJSON(client *http.Client, path string, dst any) error {
	resp, err := client.Get(p.apiURL + path)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s API: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s API returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}

// splitName turns "Ada King Lovelace" into ("Ada", "King Lovelace").
func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	first, rest, _ := strings.Cut(full, " ")
	return first, strings.TrimSpace(rest)
}
