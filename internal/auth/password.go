// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// bcrypt automatically:
//   - Generates a random salt (so two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// NEVER store passwords in plain text or with fast hashes (MD5, SHA-256).
// Those can be cracked with GPU-accelerated rainbow tables in minutes.
// At cost 13, bcrypt takes ~500ms: negligible for login, brutal for attackers.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$13$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (13 rounds → 2^13 = 8192 iterations)
//	 version

package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes ~200–500ms on your production hardware.
// Too low → easy to crack. Too high → login is sluggish and your server
// spends all its time on bcrypt during traffic spikes. BCRYPT_COST overrides it.
const DefaultCost = 13

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for inputs bcrypt would truncate.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: using a lower cost (e.g. 4) makes tests run much faster
// without compromising the logic being tested.
type PasswordService struct {
	cost int

	// dummyHash is compared against when there is no real hash to check, so
	// "no such user" costs as much time as "wrong password". It is built up
	// front: building it on first use would make that first miss twice as slow.
	dummyHash []byte
}

// NewPasswordService creates a PasswordService. A cost of 0 means DefaultCost.
// Tests pass bcrypt.MinCost (4) to keep hashing in the millisecond range.
//
// It panics on a cost above bcrypt.MaxCost; config.Validate rejects those
// before the server is built.
func NewPasswordService(cost int) *PasswordService {
	if cost == 0 {
		cost = DefaultCost
	}
	seed := make([]byte, 32)
	_, _ = rand.Read(seed)
	// Hashing the raw bytes directly: 32 < 72, so no truncation applies.
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		panic(fmt.Sprintf("auth: building dummy hash: %v", err))
	}
	return &PasswordService{cost: cost, dummyHash: dummy}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$13$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Store this string directly in the database. It includes the salt and
// cost: bcrypt.CompareHashAndPassword knows how to decode it.
//
// Returns ErrPasswordTooLong if the plaintext is over 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		// bcrypt silently truncates passwords longer than 72 bytes.
		// We reject them explicitly so callers aren't surprised.
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil if they match, a non-nil error if they don't.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so this function is safe against timing attacks: an attacker can't tell
// from response time whether they got the first byte right.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// Matches reports whether plaintext matches hash. An empty hash (unknown
// user, OAuth-only account) is checked against a throwaway hash of the same
// cost and always reports false, so all three misses take the same time.
func (p *PasswordService) Matches(hash, plaintext string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
		return false
	}
	return p.Verify(hash, plaintext) == nil
}
