package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// PostgresSessionRepository keeps session records in the sessions table.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresSessionRepository builds a Postgres-backed session store.
func NewPostgresSessionRepository(pool *pgxpool.Pool, opts ...SessionStoreOption) *PostgresSessionRepository {
	o := buildSessionStoreOptions(opts)
	return &PostgresSessionRepository{pool: pool, now: o.now}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, token string, session *domain.Session) error {
	now := r.now()
	if session.Expired(now) {
		return ErrSessionExpired
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.TokenHash = HashToken(token)

	const query = `
        INSERT INTO sessions (token_hash, user_id, user_agent, client_ip, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		session.TokenHash,
		session.UserID,
		nullable(session.UserAgent),
		nullable(session.ClientIP),
		session.CreatedAt,
		session.ExpiresAt,
	)
	return err
}

func (r *PostgresSessionRepository) Exists(ctx context.Context, token string) (bool, error) {
	const query = `SELECT expires_at FROM sessions WHERE token_hash=$1`

	hash := HashToken(token)
	var expiresAt time.Time
	if err := r.pool.QueryRow(ctx, query, hash).Scan(&expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if !r.now().Before(expiresAt) {
		if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash=$1`, hash); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *PostgresSessionRepository) Revoke(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash=$1`, HashToken(token))
	return err
}

func (r *PostgresSessionRepository) RevokeAll(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	return err
}

func (r *PostgresSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
