// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (sqlite, postgres).
package repository

import (
	"context"
	"time"

	"github.com/sakif/maxed-cv/internal/model"
)

// UserRepository persists identity records.
//
// Lookups return an error wrapping apperror.ErrNotFound on a miss. Updates are
// field-level and last-writer-wins: there is no version column on users.
type UserRepository interface {
	// Create assigns ID and timestamps. A duplicate email yields
	// apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error)

	SetEmailVerified(ctx context.Context, id string, at *time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// LinkProvider fills the provider slot and, when avatarURL is non-empty,
	// backfills the avatar only if none is stored yet.
	LinkProvider(ctx context.Context, id string, provider model.Provider, providerID, avatarURL string) error
	Deactivate(ctx context.Context, id string, at time.Time) error
	// Reactivate clears deactivated_at and email_verified_at and replaces the
	// password hash and names in one statement.
	Reactivate(ctx context.Context, user *model.User) error
}

// TokenRepository persists single-use token digests.
type TokenRepository interface {
	// ReplaceToken deletes every token for (UserID, Purpose) and inserts tok,
	// atomically, so at most one live token exists per pair.
	ReplaceToken(ctx context.Context, tok *model.AuthToken) error
	// ConsumeToken deletes the row matching (purpose, hash) whose expiry is
	// after now and returns its user id. Zero rows deleted is a miss
	// (apperror.ErrNotFound), whatever the reason.
	ConsumeToken(ctx context.Context, purpose model.TokenPurpose, tokenHash string, now time.Time) (string, error)
	DeleteTokens(ctx context.Context, userID string, purpose model.TokenPurpose) error
}

// Store bundles both repositories behind one connection for the server.
type Store interface {
	UserRepository
	TokenRepository
	Ping(ctx context.Context) error
	Close() error
}
