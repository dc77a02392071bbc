package auth

import (
	"sync"
	"time"
)

// ExpiryGrace is subtracted from a token's expiry when deciding whether it
// needs a refresh. A token that is valid at check time can still expire
// before the request reaches the server; the grace window makes the
// pre-emptive check err on the side of refreshing.
const ExpiryGrace = 30 * time.Second

// Token is an OAuth access/refresh token pair with its absolute expiry.
// ExpiresAt is always derived from issued-at + expires_in at the moment the
// token endpoint answered, never recomputed from wall-clock deltas.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

// Empty reports whether the token carries no credentials.
func (t Token) Empty() bool {
	return t.AccessToken == ""
}

// ExpiredAt reports whether the token should be treated as expired at the
// given instant, including the grace window. A zero ExpiresAt means the
// token endpoint reported no expiry; such tokens never pre-emptively refresh
// and rely on the 401 path.
func (t Token) ExpiredAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-ExpiryGrace))
}

// Store holds the process's current token. Every component shares a single
// Store so a refresh performed by one caller is visible to all of them.
// Persistence is the owning layer's job; the Store only guards the in-memory
// value.
type Store struct {
	mu    sync.RWMutex
	token Token
}

// NewStore creates a store seeded with the given token. A zero Token means
// not logged in.
func NewStore(t Token) *Store {
	return &Store{token: t}
}

// Get returns the current token.
func (s *Store) Get() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Replace swaps in a new token atomically. Concurrent readers observe either
// the old token or the new one, never a partial update.
func (s *Store) Replace(t Token) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

// Clear removes the stored token (logout).
func (s *Store) Clear() {
	s.Replace(Token{})
}

// Expired reports whether the current token is expired at the given instant.
func (s *Store) Expired(now time.Time) bool {
	return s.Get().ExpiredAt(now)
}
