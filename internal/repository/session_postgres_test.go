package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// newTestPool connects to POSTGRES_TEST_DSN, which must point at a migrated database.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresSessionLifecycle(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	users := NewUserRepository(pool)
	user := &domain.User{
		Name:         "Sessao Teste",
		Email:        "sessao-" + time.Now().Format("150405.000000") + "@example.com",
		PasswordHash: "x",
		Role:         domain.RoleCustomer,
	}
	require.NoError(t, users.Create(ctx, user))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id=$1`, user.ID)
	})

	now := time.Now()
	clock := func() time.Time { return now }
	store := NewPostgresSessionRepository(pool, WithSessionClock(clock))

	require.NoError(t, store.Create(ctx, "pg-a", &domain.Session{UserID: user.ID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Create(ctx, "pg-b", &domain.Session{UserID: user.ID, ExpiresAt: now.Add(time.Hour)}))

	ok, err := store.Exists(ctx, "pg-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Revoke(ctx, "pg-a"))
	ok, err = store.Exists(ctx, "pg-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(ctx, "pg-b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.RevokeAll(ctx, user.ID))
	ok, err = store.Exists(ctx, "pg-b")
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.Create(ctx, "pg-c", &domain.Session{UserID: user.ID, ExpiresAt: now})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestPostgresUserEmailUnique(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)

	email := "dup-" + time.Now().Format("150405.000000") + "@example.com"
	first := &domain.User{Name: "A", Email: email, PasswordHash: "x", Role: domain.RoleCustomer}
	require.NoError(t, users.Create(ctx, first))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id=$1`, first.ID)
	})

	second := &domain.User{Name: "B", Email: "  " + email, PasswordHash: "x", Role: domain.RoleCustomer}
	assert.ErrorIs(t, users.Create(ctx, second), ErrEmailTaken)

	found, err := users.GetByEmail(ctx, " "+email)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}
