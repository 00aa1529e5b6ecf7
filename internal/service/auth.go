package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/auth"
	"github.com/sakif/maxed-cv/internal/metrics"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/notify"
	"github.com/sakif/maxed-cv/internal/repository"
	"github.com/sakif/maxed-cv/internal/token"
)

// Errors the HTTP layer renders as-is.
var (
	// ErrInvalidCredentials is the one answer for every failed password check.
	ErrInvalidCredentials = apperror.Unauthorized("invalid email or password")
	// ErrDeactivated is only ever returned after the password was proven correct.
	ErrDeactivated     = apperror.Forbidden("this account has been deactivated")
	ErrAlreadyVerified = apperror.BadRequest("email is already verified")
)

// DefaultEnumerationDelay pads the "no such account" branch of
// RequestPasswordReset.
const DefaultEnumerationDelay = 100 * time.Millisecond

// TokenIssuer is the subset of *token.Issuer the flows use.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string, purpose model.TokenPurpose) (string, time.Time, error)
	Consume(ctx context.Context, secret string, purpose model.TokenPurpose) (string, error)
	Invalidate(ctx context.Context, userID string, purpose model.TokenPurpose) error
}

// SessionTracker bulk-invalidates a user's sessions. *session.Governor
// satisfies it; failures are handled (logged) on its side.
type SessionTracker interface {
	UntrackAll(ctx context.Context, userID string)
}

var _ TokenIssuer = (*token.Issuer)(nil)

// AuthConfig carries the non-dependency settings of AuthService.
type AuthConfig struct {
	// FrontendURL is the base of emailed links, e.g. https://maxed.cv.
	FrontendURL      string
	EnumerationDelay time.Duration
}

// AuthService implements the account and credential flows.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → identity records
//   - tokens     TokenIssuer               → verification / reset secrets
//   - passwords  *auth.PasswordService     → bcrypt
//   - sessions   SessionTracker            → "log out everywhere"
//   - notifier   notify.Notifier           → outbound email, best-effort
//
// Session creation itself is an HTTP concern (cookie, id regeneration) and
// lives in session.Manager; the handler calls it after a flow here succeeds.
type AuthService struct {
	users     repository.UserRepository
	tokens    TokenIssuer
	passwords *auth.PasswordService
	sessions  SessionTracker
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	frontendURL string
	enumDelay   time.Duration
	now         func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens TokenIssuer,
	passwords *auth.PasswordService,
	sessions SessionTracker,
	notifier notify.Notifier,
	m *metrics.Metrics,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	delay := cfg.EnumerationDelay
	if delay == 0 {
		delay = DefaultEnumerationDelay
	}
	return &AuthService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		sessions:    sessions,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		enumDelay:   delay,
		now:         time.Now,
	}
}

// SignupInput is the signup form.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Signup creates an account, or reactivates a deactivated one that owns the
// same email, and sends exactly one verification email either way.
//
// REACTIVATION:
// A deactivated account is reused in place: new password, new names, and
// both deactivated_at and email_verified_at cleared, so the owner has to
// prove the address again. An active account with the email is a Conflict.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (user *model.User, err error) {
	defer func() { s.metrics.AuthEvent("signup", err) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	first, err := validateName("firstName", in.FirstName)
	if err != nil {
		return nil, err
	}
	last, err := validateName("lastName", in.LastName)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && !existing.IsDeactivated():
		return nil, apperror.Conflict("an account with this email already exists")
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("signup: looking up %s: %w", email, err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	if existing != nil {
		existing.PasswordHash = hash
		existing.FirstName = first
		existing.LastName = last
		existing.Name = model.DisplayName(first, last)
		if err := s.users.Reactivate(ctx, existing); err != nil {
			return nil, fmt.Errorf("signup: reactivating %s: %w", existing.ID, err)
		}
		user = existing
		s.logger.Info("account reactivated", slog.String("userID", user.ID))
	} else {
		user = &model.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    first,
			LastName:     last,
			Name:         model.DisplayName(first, last),
		}
		if err := s.create(ctx, user); err != nil {
			return nil, fmt.Errorf("signup: %w", err)
		}
		s.logger.Info("user signed up", slog.String("userID", user.ID))
	}

	s.sendVerification(ctx, user)
	return user.Sanitized(), nil
}

// ValidateCredentials returns the user whose password matches, or (nil, nil)
// for every kind of miss: unknown email, OAuth-only account, wrong password.
// Each miss runs one bcrypt comparison, so timing does not tell them apart.
// A non-nil error means the store itself failed.
//
// Deactivation is deliberately not checked here; see Login.
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Matches("", password)
			return nil, nil
		}
		return nil, fmt.Errorf("validating credentials: %w", err)
	}

	if !s.passwords.Matches(user.PasswordHash, password) {
		return nil, nil
	}
	return user, nil
}

// Login checks credentials, then deactivation. Checking deactivation second
// means only someone who knows the password learns the account is
// deactivated.
func (s *AuthService) Login(ctx context.Context, email, password string) (user *model.User, err error) {
	defer func() { s.metrics.AuthEvent("login", err) }()

	user, err = s.ValidateCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.IsDeactivated() {
		s.logger.Info("login attempt on deactivated account", slog.String("userID", user.ID))
		return nil, ErrDeactivated
	}
	return user.Sanitized(), nil
}

// VerifyEmail burns a verification token and stamps the user verified.
// Every failure (unknown, expired, already used) is token.ErrInvalid.
func (s *AuthService) VerifyEmail(ctx context.Context, secret string) (userID string, err error) {
	defer func() { s.metrics.AuthEvent("verify_email", err) }()

	userID, err = s.tokens.Consume(ctx, secret, model.PurposeEmailVerification)
	if err != nil {
		return "", err
	}

	now := s.now()
	if err := s.users.SetEmailVerified(ctx, userID, &now); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", token.ErrInvalid
		}
		return "", fmt.Errorf("verifying email for %s: %w", userID, err)
	}

	s.logger.Info("email verified", slog.String("userID", userID))
	return userID, nil
}

// ResendVerification supersedes the user's verification token with a fresh
// one and emails it.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.AuthEvent("resend_verification", err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resending verification: %w", err)
	}
	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	secret, _, err := s.tokens.Issue(ctx, user.ID, model.PurposeEmailVerification)
	if err != nil {
		return fmt.Errorf("resending verification: %w", err)
	}
	s.notifyErr("verification", s.notifier.SendVerificationEmail(ctx, user.Email, s.link("verify-email", secret)))
	return nil
}

// RequestPasswordReset emails a reset link if the address has an account.
// The caller always gets nil for an unknown address, after a short pause
// standing in for the work the "found" branch does.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.AuthEvent("forgot_password", err) }()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.pause(ctx)
			return nil
		}
		return fmt.Errorf("requesting password reset: %w", err)
	}

	secret, _, err := s.tokens.Issue(ctx, user.ID, model.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("requesting password reset: %w", err)
	}
	s.notifyErr("password_reset", s.notifier.SendPasswordResetEmail(ctx, user.Email, s.link("reset-password", secret)))
	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

// ResetPassword burns a reset token, stores the new password, and logs the
// user out everywhere.
//
// The password is validated before the token is consumed, so a too-short
// password does not cost the user their link.
func (s *AuthService) ResetPassword(ctx context.Context, secret, newPassword string) (err error) {
	defer func() { s.metrics.AuthEvent("reset_password", err) }()

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, secret, model.PurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("resetting password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return token.ErrInvalid
		}
		return fmt.Errorf("resetting password for %s: %w", userID, err)
	}

	s.sessions.UntrackAll(ctx, userID)
	s.logger.Info("password reset", slog.String("userID", userID))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		// The password is already changed; only the courtesy email is lost.
		s.logger.Warn("password changed email skipped",
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return nil
	}
	s.notifyErr("password_changed", s.notifier.SendPasswordChangedEmail(ctx, user.Email))
	return nil
}

// Deactivate marks the account deactivated, drops its pending tokens, and
// ends every session. The caller clears the current cookie.
func (s *AuthService) Deactivate(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.AuthEvent("deactivate", err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("deactivating: %w", err)
	}
	if user.IsDeactivated() {
		return nil
	}

	if err := s.users.Deactivate(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("deactivating %s: %w", userID, err)
	}

	for _, purpose := range []model.TokenPurpose{model.PurposeEmailVerification, model.PurposePasswordReset} {
		if err := s.tokens.Invalidate(ctx, userID, purpose); err != nil {
			s.logger.Warn("failed to drop tokens on deactivation",
				slog.String("userID", userID),
				slog.String("purpose", string(purpose)),
				slog.Any("error", err),
			)
		}
	}
	s.sessions.UntrackAll(ctx, userID)

	name := user.Name
	if name == "" {
		name = user.FirstName
	}
	s.notifyErr("account_deactivated", s.notifier.SendAccountDeactivatedEmail(ctx, user.Email, name))
	s.logger.Info("account deactivated", slog.String("userID", userID))
	return nil
}

// FindOrCreateOAuthUser resolves a provider profile to a user:
//
//  1. provider id already linked → that user, untouched
//  2. email matches an account  → link the provider id onto it (and fill the
//     avatar if it has none)
//  3. otherwise                 → new account, verified, no password
//
// Step 2 trusts the provider's email claim and asks for no further proof
// from the existing account's owner.
func (s *AuthService) FindOrCreateOAuthUser(ctx context.Context, p *auth.Profile) (user *model.User, err error) {
	defer func() { s.metrics.AuthEvent("oauth_login", err) }()

	if p == nil || !p.Provider.Valid() || p.ProviderID == "" {
		return nil, apperror.BadRequest("incomplete identity from provider")
	}
	email := normalizeEmail(p.Email)
	if email == "" {
		return nil, apperror.BadRequest("provider did not return an email address")
	}

	user, err = s.users.GetByProviderID(ctx, p.Provider, p.ProviderID)
	if err == nil {
		return user.Sanitized(), nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("oauth: looking up %s id: %w", p.Provider, err)
	}

	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		if err := s.users.LinkProvider(ctx, user.ID, p.Provider, p.ProviderID, p.AvatarURL); err != nil {
			return nil, fmt.Errorf("oauth: linking %s to %s: %w", p.Provider, user.ID, err)
		}
		user.SetProviderID(p.Provider, p.ProviderID)
		if user.AvatarURL == "" {
			user.AvatarURL = p.AvatarURL
		}
		s.logger.Info("provider linked by email",
			slog.String("userID", user.ID),
			slog.String("provider", string(p.Provider)),
		)
		return user.Sanitized(), nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("oauth: looking up %s: %w", email, err)
	}

	now := s.now()
	user = &model.User{
		Email:           email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Name:            model.DisplayName(p.FirstName, p.LastName),
		AvatarURL:       p.AvatarURL,
		EmailVerifiedAt: &now,
	}
	user.SetProviderID(p.Provider, p.ProviderID)

	if err := s.create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Lost a race with a concurrent first login for the same identity.
			if existing, lookupErr := s.users.GetByProviderID(ctx, p.Provider, p.ProviderID); lookupErr == nil {
				return existing.Sanitized(), nil
			}
		}
		return nil, fmt.Errorf("oauth: %w", err)
	}

	s.logger.Info("user created via oauth",
		slog.String("userID", user.ID),
		slog.String("provider", string(p.Provider)),
	)
	return user.Sanitized(), nil
}

// GetUserByID returns the user without the password hash.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return user.Sanitized(), nil
}

// CurrentUser returns the user along with every way they can sign in. The
// methods are computed before the hash is stripped.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*model.User, []model.CredentialMethod, error) {
	if id == "" {
		return nil, nil, apperror.Unauthorized("you must be logged in")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching current user: %w", err)
	}
	return user.Sanitized(), user.CredentialMethods(), nil
}

// create enforces that no account is stored without a way to sign in.
func (s *AuthService) create(ctx context.Context, user *model.User) error {
	if !user.CanAuthenticate() {
		return apperror.Internal("refusing to create an account with no credentials", nil)
	}
	return s.users.Create(ctx, user)
}

// sendVerification issues and emails a verification token. A failure here
// leaves the account in place; the user recovers with resend-verification.
func (s *AuthService) sendVerification(ctx context.Context, user *model.User) {
	secret, _, err := s.tokens.Issue(ctx, user.ID, model.PurposeEmailVerification)
	if err != nil {
		s.logger.Error("failed to issue verification token",
			slog.String("userID", user.ID),
			slog.Any("error", err),
		)
		return
	}
	s.notifyErr("verification", s.notifier.SendVerificationEmail(ctx, user.Email, s.link("verify-email", secret)))
}

// notifyErr logs a synchronous notifier failure. The flows never fail on one.
func (s *AuthService) notifyErr(kind string, err error) {
	if err != nil {
		s.logger.Error("notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (s *AuthService) link(path, secret string) string {
	return s.frontendURL + "/" + path + "/" + url.PathEscape(secret)
}

func (s *AuthService) pause(ctx context.Context) {
	t := time.NewTimer(s.enumDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
