package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

const (
	sessionKeyPrefix   = "session:tok:"
	userIndexKeyPrefix = "session:user:"
	// userIndexTTL outlives any single session, so the index never expires before
	// its members.
	userIndexTTL = 31 * 24 * time.Hour
)

type redisSessionRecord struct {
	UserID    string    `json:"user_id"`
	UserAgent string    `json:"user_agent,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisSessionRepository stores one key per session with a native TTL, plus a set per
// user indexing that user's session hashes for RevokeAll.
type RedisSessionRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionRepository builds a Redis-backed session store.
func NewRedisSessionRepository(client redis.UniversalClient, opts ...SessionStoreOption) *RedisSessionRepository {
	o := buildSessionStoreOptions(opts)
	return &RedisSessionRepository{client: client, now: o.now}
}

func (r *RedisSessionRepository) Create(ctx context.Context, token string, session *domain.Session) error {
	now := r.now()
	if session.Expired(now) {
		return ErrSessionExpired
	}
	ttl := session.ExpiresAt.Sub(now)
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.TokenHash = HashToken(token)

	payload, err := json.Marshal(redisSessionRecord{
		UserID:    session.UserID,
		UserAgent: session.UserAgent,
		ClientIP:  session.ClientIP,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	indexKey := userIndexKey(session.UserID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.TokenHash), payload, ttl)
	pipe.SAdd(ctx, indexKey, session.TokenHash)
	pipe.Expire(ctx, indexKey, userIndexTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisSessionRepository) Exists(ctx context.Context, token string) (bool, error) {
	hash := HashToken(token)
	record, err := r.get(ctx, hash)
	if err != nil || record == nil {
		return false, err
	}
	if !r.now().Before(record.ExpiresAt) {
		if err := r.delete(ctx, hash, record.UserID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *RedisSessionRepository) Revoke(ctx context.Context, token string) error {
	hash := HashToken(token)
	record, err := r.get(ctx, hash)
	if err != nil {
		return err
	}
	userID := ""
	if record != nil {
		userID = record.UserID
	}
	return r.delete(ctx, hash, userID)
}

func (r *RedisSessionRepository) RevokeAll(ctx context.Context, userID string) error {
	indexKey := userIndexKey(userID)
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, sessionKey(hash))
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}

// CleanupExpired prunes user index entries whose session keys Redis has already expired.
func (r *RedisSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, userIndexKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, err
		}
		for _, indexKey := range keys {
			n, err := r.pruneIndex(ctx, indexKey)
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *RedisSessionRepository) pruneIndex(ctx context.Context, indexKey string) (int64, error) {
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, err
	}
	var stale []interface{}
	for _, hash := range hashes {
		n, err := r.client.Exists(ctx, sessionKey(hash)).Result()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			stale = append(stale, hash)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return r.client.SRem(ctx, indexKey, stale...).Result()
}

func (r *RedisSessionRepository) get(ctx context.Context, hash string) (*redisSessionRecord, error) {
	raw, err := r.client.Get(ctx, sessionKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record redisSessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

func (r *RedisSessionRepository) delete(ctx context.Context, hash, userID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(hash))
	if userID != "" {
		pipe.SRem(ctx, userIndexKey(userID), hash)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func sessionKey(hash string) string {
	return sessionKeyPrefix + hash
}

func userIndexKey(userID string) string {
	return userIndexKeyPrefix + userID
}
