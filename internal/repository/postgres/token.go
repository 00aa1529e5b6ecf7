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

func (db *DB) ReplaceToken(ctx context.Context, tok *model.AuthToken) error {
	tok.ID = xid.New().String()
	tok.CreatedAt = time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning token tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = $1 AND purpose = $2`,
		tok.UserID, string(tok.Purpose),
	); err != nil {
		return fmt.Errorf("postgres: deleting prior %s tokens for %s: %w", tok.Purpose, tok.UserID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.UserID, string(tok.Purpose), tok.TokenHash, tok.ExpiresAt.UTC(), tok.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: inserting %s token for %s: %w", tok.Purpose, tok.UserID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing token tx: %w", err)
	}
	return nil
}

// ConsumeToken relies on DELETE ... RETURNING taking a row lock: a second
// concurrent DELETE waits, then re-checks and matches nothing.
func (db *DB) ConsumeToken(ctx context.Context, purpose model.TokenPurpose, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := db.conn.QueryRowContext(ctx,
		`DELETE FROM auth_tokens
		 WHERE purpose = $1 AND token_hash = $2 AND expires_at > $3
		 RETURNING user_id`,
		string(purpose), tokenHash, now.UTC(),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("token", string(purpose))
		}
		return "", fmt.Errorf("postgres: consuming %s token: %w", purpose, err)
	}
	return userID, nil
}

func (db *DB) DeleteTokens(ctx context.Context, userID string, purpose model.TokenPurpose) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = $1 AND purpose = $2`,
		userID, string(purpose),
	); err != nil {
		return fmt.Errorf("postgres: deleting %s tokens for %s: %w", purpose, userID, err)
	}
	return nil
}
