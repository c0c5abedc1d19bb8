package auth

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token store errors.
var (
	ErrNoToken      = errors.New("auth: no bearer token")
	ErrTokenExpired = errors.New("auth: bearer token expired")
)

// TokenStore holds the backend bearer credential. The token is opaque to the monitor except for the
// JWT exp claim, which is read without verification so an expired credential is never sent.
type TokenStore struct {
	mu    sync.RWMutex
	token string
	path  string
	now   func() time.Time
}

// NewTokenStore returns a store seeded with token. When path is set the token is read from that
// file on first use and Clear removes the file too.
func NewTokenStore(token, path string) *TokenStore {
	return &TokenStore{
		token: strings.TrimSpace(token),
		path:  strings.TrimSpace(path),
		now:   time.Now,
	}
}

// Token returns the current bearer token.
func (s *TokenStore) Token() (string, error) {
	s.mu.RLock()
	token, path := s.token, s.path
	s.mu.RUnlock()

	if token == "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", ErrNoToken
			}
			return "", err
		}
		token = strings.TrimSpace(string(data))
		s.Set(token)
	}
	if token == "" {
		return "", ErrNoToken
	}
	if expired(token, s.now()) {
		return "", ErrTokenExpired
	}
	return token, nil
}

// Set replaces the token.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear drops the credential, as after a 401.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	path := s.path
	s.mu.Unlock()
	if path != "" {
		_ = os.Remove(path)
	}
}

func expired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// not a JWT: leave validity to the backend
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}
