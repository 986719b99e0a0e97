// Package exchange holds minted identity tokens until the browser redeems
// them with a one-time exchange key.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/crypto"
)

// Store is a single-use key/value store for identity tokens.
//
// Consume reads and deletes in one atomic step: of any number of concurrent
// Consume calls for the same key at most one observes the token. A missing,
// consumed or expired key is reported as found == false with a nil error.
// Transport failures wrap autherr.ErrStoreUnavailable.
type Store interface {
	Put(ctx context.Context, key, token string) error
	Consume(ctx context.Context, key string) (token string, found bool, err error)
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context) (int, error)
}

// Entry is one stored token.
type Entry struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now. A zero
// ExpiresAt never expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// newEntry stamps token with creation and expiry times
func newEntry(token string, now time.Time, ttl time.Duration) Entry {
	e := Entry{Token: token, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// NewKey returns a fresh exchange key.
func NewKey() (string, error) {
	return crypto.GenerateSecureToken()
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return autherr.Malformed("exchange key is required")
	}
	return nil
}
