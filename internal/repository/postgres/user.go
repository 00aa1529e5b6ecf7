package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/model"
)

const userColumns = `id, email, password_hash, first_name, last_name, name, avatar_url,
	google_id, linkedin_id, github_id, email_verified_at, deactivated_at, created_at, updated_at`

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

func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, name, avatar_url,
			google_id, linkedin_id, github_id, email_verified_at, deactivated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
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
		user.EmailVerifiedAt,
		user.DeactivatedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		switch uniqueViolation(err) {
		case "":
			return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
		case "users_email_key":
			return apperror.Conflict("an account with this email already exists")
		default:
			return apperror.Conflict("this sign-in account is already linked to another user")
		}
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "id", id)
}

func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "email", email)
}

func (db *DB) GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, col), providerID)
	return scanUser(row, col, providerID)
}

func (db *DB) SetEmailVerified(ctx context.Context, id string, at *time.Time) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET email_verified_at = $1, updated_at = now() WHERE id = $2`, at, id)
}

func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		nullString(passwordHash), id)
}

func (db *DB) LinkProvider(ctx context.Context, id string, provider model.Provider, providerID, avatarURL string) error {
	col, err := providerColumn(provider)
	if err != nil {
		return err
	}
	err = db.execUpdate(ctx, id,
		fmt.Sprintf(`UPDATE users SET %s = $1, avatar_url = COALESCE(avatar_url, $2), updated_at = now()
			WHERE id = $3`, col),
		providerID, nullString(avatarURL), id)
	if uniqueViolation(err) != "" {
		return apperror.Conflict(fmt.Sprintf("this %s account is already linked to another user", provider))
	}
	return err
}

func (db *DB) Deactivate(ctx context.Context, id string, at time.Time) error {
	return db.execUpdate(ctx, id,
		`UPDATE users SET deactivated_at = $1, updated_at = now() WHERE id = $2`, at.UTC(), id)
}

func (db *DB) Reactivate(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	user.DeactivatedAt = nil
	user.EmailVerifiedAt = nil
	return db.execUpdate(ctx, user.ID,
		`UPDATE users SET password_hash = $1, first_name = $2, last_name = $3, name = $4,
			deactivated_at = NULL, email_verified_at = NULL, updated_at = $5
		 WHERE id = $6`,
		nullString(user.PasswordHash),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.Name),
		user.UpdatedAt,
		user.ID,
	)
}

func (db *DB) execUpdate(ctx context.Context, id, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if uniqueViolation(err) != "" {
			return err
		}
		return fmt.Errorf("postgres: updating user %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func scanUser(row *sql.Row, by, value string) (*model.User, error) {
	var (
		u                               model.User
		hash, first, last, name, avatar sql.NullString
		googleID, linkedInID, gitHubID  sql.NullString
		verifiedAt, deactivatedAt       sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &hash, &first, &last, &name, &avatar,
		&googleID, &linkedInID, &gitHubID,
		&verifiedAt, &deactivatedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", by, err)
	}

	u.PasswordHash = hash.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Name = name.String
	u.AvatarURL = avatar.String
	u.GoogleID = googleID.String
	u.LinkedInID = linkedInID.String
	u.GitHubID = gitHubID.String
	if verifiedAt.Valid {
		u.EmailVerifiedAt = &verifiedAt.Time
	}
	if deactivatedAt.Valid {
		u.DeactivatedAt = &deactivatedAt.Time
	}
	return &u, nil
}
