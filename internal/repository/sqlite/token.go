package sqlite

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

// ReplaceToken deletes every token for (UserID, Purpose) and inserts tok in
// one transaction.
func (db *DB) ReplaceToken(ctx context.Context, tok *model.AuthToken) error {
	tok.ID = xid.New().String()
	tok.CreatedAt = time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning token tx: %w", err)
	}
	// Rollback after Commit is a no-op, so deferring it covers every early return.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = ? AND purpose = ?`,
		tok.UserID, string(tok.Purpose),
	); err != nil {
		return fmt.Errorf("sqlite: deleting prior %s tokens for %s: %w", tok.Purpose, tok.UserID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tok.ID,
		tok.UserID,
		string(tok.Purpose),
		tok.TokenHash,
		tok.ExpiresAt.UnixMilli(),
		tok.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: inserting %s token for %s: %w", tok.Purpose, tok.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing token tx: %w", err)
	}
	return nil
}

// ConsumeToken validates and deletes in one statement. Two racing consumers
// cannot both get a row back: the loser's DELETE matches nothing.
func (db *DB) ConsumeToken(ctx context.Context, purpose model.TokenPurpose, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := db.conn.QueryRowContext(ctx,
		`DELETE FROM auth_tokens
		 WHERE purpose = ? AND token_hash = ? AND expires_at > ?
		 RETURNING user_id`,
		string(purpose), tokenHash, now.UnixMilli(),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("token", string(purpose))
		}
		return "", fmt.Errorf("sqlite: consuming %s token: %w", purpose, err)
	}
	return userID, nil
}

func (db *DB) DeleteTokens(ctx context.Context, userID string, purpose model.TokenPurpose) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = ? AND purpose = ?`,
		userID, string(purpose),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s tokens for %s: %w", purpose, userID, err)
	}
	return nil
}

// LiveTokens returns unexpired tokens for (userID, purpose), oldest first.
// It is a diagnostics accessor on the development database and not part of
// repository.TokenRepository; the auth flows never list tokens.
func (db *DB) LiveTokens(ctx context.Context, userID string, purpose model.TokenPurpose, now time.Time) ([]model.AuthToken, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, purpose, token_hash, expires_at, created_at
		 FROM auth_tokens
		 WHERE user_id = ? AND purpose = ? AND expires_at > ?
		 ORDER BY created_at`,
		userID, string(purpose), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s tokens for %s: %w", purpose, userID, err)
	}
	defer rows.Close()

	var tokens []model.AuthToken
	for rows.Next() {
		var (
			t         model.AuthToken
			p         string
			expiresMs int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &p, &t.TokenHash, &expiresMs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning token row: %w", err)
		}
		t.Purpose = model.TokenPurpose(p)
		t.ExpiresAt = time.UnixMilli(expiresMs).UTC()
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
