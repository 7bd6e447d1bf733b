package remote

import (
	"sync"
	"time"
)

// TokenSource supplies the bearer credential for remote calls. AccessToken
// must be cheap: implementations cache the token and only report whether it
// is still usable. Refreshing is up to whoever owns the TokenSource.
type TokenSource interface {
	AccessToken() (string, bool)
}

// NoToken is a TokenSource that never has a credential.
type NoToken struct{}

// AccessToken implements TokenSource.
func (NoToken) AccessToken() (string, bool) { return "", false }

// StaticToken is a fixed token with an optional expiry.
type StaticToken struct {
	Token  string
	Expiry time.Time // zero means it does not expire
}

// AccessToken implements TokenSource.
func (s StaticToken) AccessToken() (string, bool) {
	if s.Token == "" {
		return "", false
	}
	if !s.Expiry.IsZero() && !time.Now().Before(s.Expiry) {
		return "", false
	}
	return s.Token, true
}

// SwappableToken is a TokenSource whose token can be replaced at runtime,
// for example after an external sign-in flow hands over a fresh credential.
type SwappableToken struct {
	mu  sync.RWMutex
	src TokenSource
}

// NewSwappableToken wraps src. A nil src behaves like NoToken.
func NewSwappableToken(src TokenSource) *SwappableToken {
	if src == nil {
		src = NoToken{}
	}
	return &SwappableToken{src: src}
}

// Set replaces the underlying source.
func (s *SwappableToken) Set(src TokenSource) {
	if src == nil {
		src = NoToken{}
	}
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

// AccessToken implements TokenSource.
func (s *SwappableToken) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src.AccessToken()
}
