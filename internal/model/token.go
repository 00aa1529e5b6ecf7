package model

import "time"

// TokenPurpose separates verification tokens from password-reset tokens.
// At most one live token exists per (user, purpose).
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// AuthToken is the persisted half of a single-use token. Only the digest of
// the secret is stored; the secret itself goes out by email and nowhere else.
type AuthToken struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	Purpose   TokenPurpose `db:"purpose"`
	TokenHash string       `db:"token_hash"`
	ExpiresAt time.Time    `db:"expires_at"`
	CreatedAt time.Time    `db:"created_at"`
}
