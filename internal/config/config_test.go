package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("ROUTES_PUBLIC", "/, /blog/* ,,/conta")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, 2*time.Second, cfg.Session.StoreTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Auth.PasswordResetTTL())
	assert.False(t, cfg.Auth.RevocationCheck)
	assert.Equal(t, []string{"/", "/blog/*", "/conta"}, cfg.Routes.Public)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, "/redefinir-senha", cfg.Notify.ResetPageURL)
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{JWTSecret: "s"}, Session: SessionConfig{Store: "memcached"}}
	require.Error(t, cfg.Validate())

	cfg.Session.Store = "postgres"
	require.Error(t, cfg.Validate(), "postgres store needs a DSN")

	cfg.Postgres.DSN = "postgres://localhost/db"
	require.NoError(t, cfg.Validate())
}
