package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const resetUseKeyPrefix = "reset:used:"

// PasswordResetRepository records which reset tokens have been redeemed. The token
// itself is self-describing; only its jti is remembered, and only until it would
// have expired anyway.
type PasswordResetRepository interface {
	// MarkUsed claims tokenID. It returns false when the token was already redeemed.
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	// Release undoes MarkUsed when the reset could not be completed.
	Release(ctx context.Context, tokenID string) error
}

type redisPasswordResetRepository struct {
	client redis.UniversalClient
}

// NewRedisPasswordResetRepository keeps redemption markers as expiring Redis keys.
func NewRedisPasswordResetRepository(client redis.UniversalClient) PasswordResetRepository {
	return &redisPasswordResetRepository{client: client}
}

func (r *redisPasswordResetRepository) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.client.SetNX(ctx, resetUseKeyPrefix+tokenID, 1, ttl).Result()
}

func (r *redisPasswordResetRepository) Release(ctx context.Context, tokenID string) error {
	return r.client.Del(ctx, resetUseKeyPrefix+tokenID).Err()
}

type passwordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository keeps redemption markers in password_reset_uses.
func NewPasswordResetRepository(pool *pgxpool.Pool) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	const query = `
        INSERT INTO password_reset_uses (token_id, expires_at)
        VALUES ($1, $2)
        ON CONFLICT (token_id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query, tokenID, time.Now().Add(ttl))
	if err != nil {
		return false, err
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM password_reset_uses WHERE expires_at < NOW()`); err != nil {
		return cmd.RowsAffected() == 1, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *passwordResetRepository) Release(ctx context.Context, tokenID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_reset_uses WHERE token_id = $1`, tokenID)
	return err
}
