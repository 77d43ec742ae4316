package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FxPulse/pkg/cache"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for unknown or expired session tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Tokens maps opaque session tokens to subscriber ids. The account service
// writes the same keys when a user signs in.
type Tokens struct {
	cache  cache.Service
	prefix string
}

// NewTokens creates a token resolver over c. Keys are "<prefix>:<token>".
func NewTokens(c cache.Service, prefix string) *Tokens {
	if prefix == "" {
		prefix = "session-token"
	}
	return &Tokens{cache: c, prefix: prefix}
}

// Resolve returns the subscriber id bound to token.
func (t *Tokens) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	var subscriberID string
	if err := t.cache.Get(ctx, cache.GenerateKey(t.prefix, token), &subscriberID); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("resolve token: %w", err)
	}
	if subscriberID == "" {
		return "", ErrInvalidToken
	}
	return subscriberID, nil
}

// Issue binds a fresh token to subscriberID for ttl.
func (t *Tokens) Issue(ctx context.Context, subscriberID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := t.cache.Set(ctx, cache.GenerateKey(t.prefix, token), subscriberID, ttl); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Revoke invalidates token.
func (t *Tokens) Revoke(ctx context.Context, token string) error {
	return t.cache.Delete(ctx, cache.GenerateKey(t.prefix, token))
}
