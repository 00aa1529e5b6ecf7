package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/model"
)

const userColumns = `id, email, password_hash, first_name, last_name, name, avatar_url,
	google_id, linkedin_id, github_id, email_verified_at, deactivated_at, created_at, updated_at`

// providerColumn maps a provider to its id column. Only known providers reach
// the SQL string, so the Sprintf below never sees user input.
func providerColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderLinkedIn:
		return "linkedin_id", nil
	case model.ProviderGitHub:
		return "github_id", nil
	}
	return "", apperror.BadRequest(fmt.Sprintf("unsupported provider %q", p))
}

// Create inserts a new user. The ID is an xid: globally unique, sortable by
// creation time, and URL-safe.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, name, avatar_url,
			google_id, linkedin_id, github_id, email_verified_at, deactivated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.Name),
		nullString(user.AvatarURL),
		nullString(user.GoogleID),
		nullString(user.LinkedInID),
		nullString(user.GitHubID),
		nullTime(user.EmailVerifiedAt),
		nullTime(user.DeactivatedAt),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return apperror.Conflict("an account with this email already exists")
			}
			return apperror.Conflict("this sign-in account is already linked to another user")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row, "id", id)
}

// GetByEmail is an exact, case-sensitive match on the stored address.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row, "email", email)
}

func (db *DB) GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE %s = ?`, userColumns, col), providerID)
	return scanUser(row, col, providerID)
}

// SetEmailVerified stamps (or, with nil, clears) email_verified_at.
func (db *DB) SetEmailVerified(ctx context.Context, id string, at *time.Time) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET email_verified_at = ?, updated_at = ? WHERE id = ?`,
		nullTime(at), time.Now().UTC(), id)
}

func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		nullString(passwordHash), time.Now().UTC(), id)
}

// LinkProvider fills one provider slot. COALESCE keeps an existing avatar.
func (db *DB) LinkProvider(ctx context.Context, id string, provider model.Provider, providerID, avatarURL string) error {
	col, err := providerColumn(provider)
	if err != nil {
		return err
	}
	err = db.execUpdate(ctx, id,
		fmt.Sprintf(`UPDATE users SET %s = ?, avatar_url = COALESCE(avatar_url, ?), updated_at = ?
			WHERE id = ?`, col),
		providerID, nullString(avatarURL), time.Now().UTC(), id)
	if isUniqueViolation(err) {
		return apperror.Conflict(fmt.Sprintf("this %s account is already linked to another user", provider))
	}
	return err
}

func (db *DB) Deactivate(ctx context.Context, id string, at time.Time) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET deactivated_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
}

// Reactivate clears both lifecycle timestamps and replaces the password and
// names in a single statement, so a reader never sees a half-reset account.
func (db *DB) Reactivate(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	user.DeactivatedAt = nil
	user.EmailVerifiedAt = nil
	return db.execUpdate(ctx, user.ID,
		`UPDATE users SET password_hash = ?, first_name = ?, last_name = ?, name = ?,
			deactivated_at = NULL, email_verified_at = NULL, updated_at = ?
		 WHERE id = ?`,
		nullString(user.PasswordHash),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.Name),
		user.UpdatedAt,
		user.ID,
	)
}

// execUpdate runs a single-row UPDATE and maps zero affected rows to NotFound.
func (db *DB) execUpdate(ctx context.Context, id, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// scanUser reads one row in userColumns order. Nullable columns go through
// sql.Null* and collapse to "" / nil on the model.
func scanUser(row *sql.Row, by, value string) (*model.User, error) {
	var (
		u                               model.User
		hash, first, last, name, avatar sql.NullString
		googleID, linkedInID, gitHubID  sql.NullString
		verifiedAt, deactivatedAt       sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&hash,
		&first,
		&last,
		&name,
		&avatar,
		&googleID,
		&linkedInID,
		&gitHubID,
		&verifiedAt,
		&deactivatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", by, err)
	}

	u.PasswordHash = hash.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Name = name.String
	u.AvatarURL = avatar.String
	u.GoogleID = googleID.String
	u.LinkedInID = linkedInID.String
	u.GitHubID = gitHubID.String
	u.EmailVerifiedAt = timePtr(verifiedAt)
	u.DeactivatedAt = timePtr(deactivatedAt)
	return &u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
