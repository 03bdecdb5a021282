package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// ErrSessionExpired is returned when asked to persist a session that is already over.
var ErrSessionExpired = errors.New("session already expired")

// SessionRepository persists issued session tokens so they can be revoked.
// Records are keyed by a hash of the token; the raw token is never stored.
type SessionRepository interface {
	// Create stores a new session record for token and fills session.TokenHash.
	Create(ctx context.Context, token string, session *domain.Session) error
	// Exists reports whether an unexpired record exists for token. An expired record
	// found on the way is deleted.
	Exists(ctx context.Context, token string) (bool, error)
	// Revoke deletes the record for token. Missing records are not an error.
	Revoke(ctx context.Context, token string) error
	// RevokeAll deletes every record belonging to userID.
	RevokeAll(ctx context.Context, userID string) error
	// CleanupExpired removes stale records and returns how many were dropped.
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionStoreOption customizes a session repository.
type SessionStoreOption func(*sessionStoreOptions)

type sessionStoreOptions struct {
	now func() time.Time
}

// WithSessionClock replaces time.Now when judging expiry.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(o *sessionStoreOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildSessionStoreOptions(opts []SessionStoreOption) sessionStoreOptions {
	o := sessionStoreOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// HashToken derives the storage key for a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
