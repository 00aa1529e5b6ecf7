// Package auth holds the credential primitives of the login flows: password
// hashing, OAuth provider clients, signed OAuth state, and the RequireAuth
// middleware that guards session-only routes.
//
// OAUTH FLOW OVERVIEW:
// 1. User visits /auth/{provider} → we sign a state token, store it in an
//    HttpOnly cookie, and redirect to the provider with the same value as ?state
// 2. The provider calls back /auth/{provider}/callback?code=...&state=...
// 3. We require ?state to equal the cookie (binds the callback to this browser)
//    and the token to verify (binds it to this provider, within 10 minutes)
// 4. The code is exchanged for a profile, the orchestrator finds or creates
//    the user, and a server-side session is established
//
// WHY A SIGNED STATE INSTEAD OF A RANDOM STRING?
// A random string proves only that the browser that started the flow is the
// one finishing it. Signing it as a JWT also pins the provider and an expiry,
// with no server-side storage.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"provider":"google","jti":"<nonce>","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, SESSION_SECRET)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	stateIssuer = "maxed-cv"
	stateTTL    = 10 * time.Minute

	// StateCookieName carries the signed state between redirect and callback.
	StateCookieName = "oauth_state"
	// MinSecretLength is the shortest SESSION_SECRET accepted.
	MinSecretLength = 32
)

// StateService signs and verifies OAuth state values.
type StateService struct {
	secret []byte
	now    func() time.Time
}

// NewStateService creates a StateService with the given secret.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewStateService(secret string) (*StateService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d characters", MinSecretLength)
	}
	return &StateService{secret: []byte(secret), now: time.Now}, nil
}

// stateClaims is the JWT payload. The nonce (jti) makes every state unique,
// so two logins started in the same second still differ.
type stateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Generate creates a signed state for provider, valid for ten minutes.
func (s *StateService) Generate(provider string) (string, error) {
	now := s.now()
	c := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
			Issuer:    stateIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Validate checks signature, issuer, expiry and that the state was minted
// for provider.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token signed with "none" might be accepted.
// jwt.WithValidMethods prevents this.
func (s *StateService) Validate(state, provider string) error {
	token, err := jwt.ParseWithClaims(
		state,
		&stateClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("auth: state expired")
		}
		return fmt.Errorf("auth: invalid state: %w", err)
	}

	c, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("auth: invalid state claims")
	}
	if c.Provider != provider {
		return fmt.Errorf("auth: state was issued for %q, not %q", c.Provider, provider)
	}
	return nil
}
