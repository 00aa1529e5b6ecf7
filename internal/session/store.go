// Package session keeps server-side login sessions in Redis and enforces the
// per-user concurrent-session cap.
//
// KEYS:
//
//	sess:<id>              JSON model.Session, native TTL (sliding)
//	user:<userID>:sessions sorted set of live session ids, scored by creation time (ms)
//
// The sorted set is only a back-reference for eviction and bulk logout. It
// never holds session contents.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/maxed-cv/internal/model"
)

// ErrNotFound means no live record exists for the id (never created, expired,
// evicted, or destroyed).
var ErrNotFound = errors.New("session not found")

const (
	sessionKeyPrefix = "sess:"
	idBytes          = 32
)

func sessionKey(id string) string { return sessionKeyPrefix + id }

func userSetKey(userID string) string { return "user:" + userID + ":sessions" }

// NewID returns an opaque, URL-safe session identifier.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// shortID is the form session ids take in logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}

// Store persists session records with a sliding TTL.
type Store struct {
	rdb         redis.Cmdable
	idleTTL     time.Duration
	rememberTTL time.Duration
}

func NewStore(rdb redis.Cmdable, idleTTL, rememberTTL time.Duration) *Store {
	return &Store{rdb: rdb, idleTTL: idleTTL, rememberTTL: rememberTTL}
}

// TTL is the sliding lifetime for sess: the remember-me TTL when requested,
// otherwise the idle TTL.
func (s *Store) TTL(sess *model.Session) time.Duration {
	if sess.RememberMe {
		return s.rememberTTL
	}
	return s.idleTTL
}

// Save writes the record. Callers treat any error as fatal for the request.
func (s *Store) Save(ctx context.Context, sess *model.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), body, s.TTL(sess)).Err(); err != nil {
		return fmt.Errorf("session: saving %s: %w", shortID(sess.ID), err)
	}
	return nil
}

// Get loads the record. It neither refreshes the expiry (see Touch) nor
// checks the absolute lifetime; both belong to the HTTP boundary.
func (s *Store) Get(ctx context.Context, id string) (*model.Session, error) {
	body, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: loading %s: %w", shortID(id), err)
	}

	var sess model.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", shortID(id), err)
	}
	sess.ID = id
	return &sess, nil
}

// Touch pushes the record's expiry forward by its sliding TTL. A failed
// refresh leaves the old expiry in place.
func (s *Store) Touch(ctx context.Context, sess *model.Session) error {
	if err := s.rdb.Expire(ctx, sessionKey(sess.ID), s.TTL(sess)).Err(); err != nil {
		return fmt.Errorf("session: refreshing %s: %w", shortID(sess.ID), err)
	}
	return nil
}

// Delete removes the record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("session: deleting %s: %w", shortID(id), err)
	}
	return n > 0, nil
}
