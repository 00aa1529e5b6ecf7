package model

import "time"

// Session is the server-side record behind the session cookie.
//
// ID is the opaque cookie value and the store key, so it is not part of the
// serialized body. CreatedAt drives the absolute lifetime cap, which is
// independent of the store's sliding TTL.
type Session struct {
	ID         string    `json:"-"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	RememberMe bool      `json:"rememberMe,omitempty"`
}

// ExceedsAbsoluteLifetime reports whether the session is older than max.
func (s *Session) ExceedsAbsoluteLifetime(now time.Time, max time.Duration) bool {
	return now.Sub(s.CreatedAt) > max
}
