// Package token issues and consumes single-use, time-boxed secrets for email
// verification and password reset.
//
// HOW IT WORKS:
//  1. Issue draws 32 random bytes and encodes them URL-safe. That string is
//     the secret: it goes into an emailed link and is never stored.
//  2. The store keeps only sha256(secret). A fast digest is enough because
//     the secret is high-entropy; bcrypt would only slow the lookup down.
//  3. Consume hashes the presented secret and asks the store to delete the
//     matching unexpired row. Whatever was deleted is the winner; a miss is
//     reported the same way whether the token never existed, expired, or
//     was already used.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/repository"
)

// ErrInvalid is what callers see for any rejected secret.
var ErrInvalid = apperror.BadRequest("invalid or expired token")

const secretBytes = 32

// Issuer is safe for concurrent use.
type Issuer struct {
	store repository.TokenRepository
	ttls  map[model.TokenPurpose]time.Duration
	now   func() time.Time
}

// NewIssuer wires the token store with per-purpose lifetimes.
func NewIssuer(store repository.TokenRepository, verificationTTL, resetTTL time.Duration) *Issuer {
	return &Issuer{
		store: store,
		ttls: map[model.TokenPurpose]time.Duration{
			model.PurposeEmailVerification: verificationTTL,
			model.PurposePasswordReset:     resetTTL,
		},
		now: time.Now,
	}
}

// Issue supersedes any live token for (userID, purpose) and returns the new
// secret with its expiry.
func (i *Issuer) Issue(ctx context.Context, userID string, purpose model.TokenPurpose) (string, time.Time, error) {
	ttl, ok := i.ttls[purpose]
	if !ok {
		return "", time.Time{}, fmt.Errorf("token: unknown purpose %q", purpose)
	}

	secret, err := newSecret()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := i.now().Add(ttl)
	tok := &model.AuthToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: Digest(secret),
		ExpiresAt: expiresAt,
	}
	if err := i.store.ReplaceToken(ctx, tok); err != nil {
		return "", time.Time{}, fmt.Errorf("token: storing %s token: %w", purpose, err)
	}
	return secret, expiresAt, nil
}

// Consume returns the owning user id and burns the token. Every miss is
// ErrInvalid; only infrastructure failures come back as anything else.
func (i *Issuer) Consume(ctx context.Context, secret string, purpose model.TokenPurpose) (string, error) {
	if secret == "" {
		return "", ErrInvalid
	}
	userID, err := i.store.ConsumeToken(ctx, purpose, Digest(secret), i.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", ErrInvalid
		}
		return "", fmt.Errorf("token: consuming %s token: %w", purpose, err)
	}
	return userID, nil
}

// Invalidate deletes every token of purpose for the user.
func (i *Issuer) Invalidate(ctx context.Context, userID string, purpose model.TokenPurpose) error {
	if err := i.store.DeleteTokens(ctx, userID, purpose); err != nil {
		return fmt.Errorf("token: invalidating %s tokens: %w", purpose, err)
	}
	return nil
}

// Digest is the stored form of a secret: lowercase hex sha256.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
