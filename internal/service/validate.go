// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, manages cookies, writes responses
//	Service (Business layer) → validates, enforces auth rules, orchestrates
//	Repository (Data layer)  → reads/writes users and tokens
//
// The service never sees an *http.Request or a cookie. Session state that a
// flow depends on (who is logged in) is passed in as plain arguments, so every
// rule here can be tested with ordinary function calls.
//
// DEPENDENCY INJECTION:
// AuthService takes interfaces (repository.UserRepository, TokenIssuer,
// SessionTracker, notify.Notifier), not concrete types. Tests swap in fakes;
// the server wires the real sqlite/postgres store, Redis governor and SMTP.
package service

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/auth"
)

// Validation constants.
const (
	MinPasswordLength = 8
	MaxPasswordLength = auth.MaxPasswordBytes // bcrypt's limit, in bytes
	MaxNameLength     = 100
	MaxEmailLength    = 254
)

// normalizeEmail trims surrounding whitespace. Case is preserved: addresses
// are stored and compared exactly as entered.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// validateEmail accepts a bare address ("a@x.io"), not a display-name form
// ("Ada <a@x.io>").
func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordLength))
	}
	return nil
}

// validateName trims and length-checks an optional name field.
func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, MaxNameLength))
	}
	return name, nil
}
