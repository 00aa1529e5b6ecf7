// Package model defines the data structures used throughout the application.
package model

import "time"

// Provider names an external OAuth identity provider. Each supported
// provider has exactly one id slot on the User record.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderLinkedIn Provider = "linkedin"
	ProviderGitHub   Provider = "github"
)

// Providers lists every provider the user record has a slot for.
var Providers = []Provider{ProviderGoogle, ProviderLinkedIn, ProviderGitHub}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// User represents a registered account.
//
// WHY EMPTY STRINGS FOR OPTIONAL TEXT?
// Optional text fields (password hash, names, avatar, provider ids) use the
// empty string as "absent". The repositories translate "" to SQL NULL so the
// UNIQUE constraints on the provider id columns still hold. Timestamps that
// carry meaning when absent (verified, deactivated) are pointers instead.
//
// A user always has at least one credential method: a password hash, one or
// more provider ids, or both. See CredentialMethods.
type User struct {
	ID           string `json:"id"        db:"id"`
	Email        string `json:"email"     db:"email"`
	PasswordHash string `json:"-"         db:"password_hash"`

	FirstName string `json:"firstName,omitempty" db:"first_name"`
	LastName  string `json:"lastName,omitempty"  db:"last_name"`
	Name      string `json:"name,omitempty"      db:"name"` // derived "First Last"
	AvatarURL string `json:"avatar,omitempty"    db:"avatar_url"`

	GoogleID   string `json:"-" db:"google_id"`
	LinkedInID string `json:"-" db:"linkedin_id"`
	GitHubID   string `json:"-" db:"github_id"`

	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty" db:"email_verified_at"`
	DeactivatedAt   *time.Time `json:"-"                         db:"deactivated_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DisplayName joins first and last name when both are present.
func DisplayName(first, last string) string {
	if first == "" || last == "" {
		return ""
	}
	return first + " " + last
}

// ProviderID returns the id stored in the slot for p ("" when unlinked).
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderLinkedIn:
		return u.LinkedInID
	case ProviderGitHub:
		return u.GitHubID
	}
	return ""
}

// SetProviderID fills the slot for p. Unknown providers are ignored.
func (u *User) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderLinkedIn:
		u.LinkedInID = id
	case ProviderGitHub:
		u.GitHubID = id
	}
}

// IsVerified reports whether the email address has been confirmed.
func (u *User) IsVerified() bool { return u.EmailVerifiedAt != nil }

// IsDeactivated reports whether the account was deactivated by its owner.
func (u *User) IsDeactivated() bool { return u.DeactivatedAt != nil }

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// Sanitized returns a copy without the password hash, safe to hand to
// callers outside the credential path.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}
