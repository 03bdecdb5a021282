package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/storefront-auth/internal/domain"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

type stubSessions struct {
	exists bool
	err    error
	calls  int
}

func (s *stubSessions) Exists(context.Context, string) (bool, error) {
	s.calls++
	return s.exists, s.err
}

// hangingSessions blocks until the caller's context ends.
type hangingSessions struct {
	mu          sync.Mutex
	hasDeadline bool
}

func (h *hangingSessions) Exists(ctx context.Context, _ string) (bool, error) {
	_, ok := ctx.Deadline()
	h.mu.Lock()
	h.hasDeadline = ok
	h.mu.Unlock()
	<-ctx.Done()
	return false, ctx.Err()
}

func (h *hangingSessions) sawDeadline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasDeadline
}

type middlewareFixture struct {
	app    *fiber.App
	tokens *TokenManager
	clock  *fakeClock
	logs   *observer.ObservedLogs
}

func newMiddlewareFixture(t *testing.T, sessions SessionChecker, opts ...func(*MiddlewareConfig)) *middlewareFixture {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	tokens := newTestTokenManager(t, clock)

	core, logs := observer.New(zapcore.DebugLevel)
	cfg := MiddlewareConfig{Logger: zap.New(core)}
	if sessions != nil {
		cfg.Sessions = sessions
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	mw := NewAuthMiddleware(tokens, cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code}})
		},
	})
	app.Use(mw.Handle)
	app.Get("/*", func(c *fiber.Ctx) error {
		if claims, ok := ClaimsFromContext(c); ok {
			fromCtx, _ := ClaimsFromUserContext(c.UserContext())
			return c.SendString("hello " + string(claims.Role) + " " + fromCtx.Subject)
		}
		return c.SendString("hello anonymous")
	})
	app.Post("/api/auth/logout-todos", mw.RequireSession, RequireRole(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	return &middlewareFixture{app: app, tokens: tokens, clock: clock, logs: logs}
}

func (f *middlewareFixture) token(t *testing.T, role domain.Role) string {
	t.Helper()
	claims := sampleClaims()
	claims.Role = role
	token, _, err := f.tokens.Issue(claims)
	require.NoError(t, err)
	return token
}

func (f *middlewareFixture) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

func clearedCookie(resp *http.Response) bool {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName && c.Value == "" && !c.Expires.IsZero() && c.Expires.Before(time.Now()) {
			return true
		}
	}
	return false
}

func TestMiddlewareRedirectsAnonymousToLogin(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/dashboard/admin", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?redirecionarPara=/dashboard/admin", resp.Header.Get("Location"))
	assert.False(t, clearedCookie(resp), "nothing to clear")

	entries := f.logs.FilterField(zap.String("event", "auth_denied")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "missing_token", entries[0].ContextMap()["reason"])
}

func TestMiddlewareRoleMismatchRedirectsHome(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/dashboard/admin", f.token(t, domain.RoleCustomer))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/conta", resp.Header.Get("Location"))

	resp = f.do(t, http.MethodGet, "/dashboard/admin/pedidos", f.token(t, domain.RoleAffiliate))
	assert.Equal(t, "/dashboard/afiliado", resp.Header.Get("Location"))
}

func TestMiddlewareAllowsPermittedRole(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/dashboard/admin", f.token(t, domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewarePublicPathExactness(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/conta", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/conta/pedidos", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?redirecionarPara=/conta/pedidos", resp.Header.Get("Location"))
}

func TestMiddlewarePublicPathIgnoresBrokenToken(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/livros/dragao", "garbage")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, clearedCookie(resp))
}

func TestMiddlewareInvalidTokenClearsCookie(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/conta/pedidos", "not.a.jwt")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?redirecionarPara=/conta/pedidos", resp.Header.Get("Location"))
	assert.True(t, clearedCookie(resp))
}

func TestMiddlewareExpiredTokenClearsCookie(t *testing.T) {
	f := newMiddlewareFixture(t, nil)
	token := f.token(t, domain.RoleCustomer)
	f.clock.Advance(SessionLifetime + time.Second)

	resp := f.do(t, http.MethodGet, "/conta/pedidos", token)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, clearedCookie(resp))

	entries := f.logs.FilterField(zap.String("reason", "token_expired")).All()
	assert.Len(t, entries, 1)
}

func TestMiddlewareAuthPages(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/login", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/login", f.token(t, domain.RoleEmployee))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard/funcionario", resp.Header.Get("Location"))

	resp = f.do(t, http.MethodGet, "/cadastro", "expired-or-bogus")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareBearerFallback(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/conta/pedidos", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, domain.RoleSubscriber))
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareForwardsIdentity(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Equal(t, "hello CLIENTE "+sampleClaims().Subject, body)
}

func TestMiddlewareAPIPathsGetJSON(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/pedidos", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), apperrors.CodeUnauthorized)

	resp = f.do(t, http.MethodGet, "/api/admin/usuarios", f.token(t, domain.RoleCustomer))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	token := f.token(t, domain.RoleCustomer)
	f.clock.Advance(SessionLifetime + time.Second)
	resp = f.do(t, http.MethodGet, "/api/pedidos", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), apperrors.CodeTokenExpired)
}

func TestRequireSessionOnPublicAPIRoute(t *testing.T) {
	f := newMiddlewareFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/auth/logout-todos", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/logout-todos", "bogus")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), apperrors.CodeTokenMalformed)

	resp = f.do(t, http.MethodPost, "/api/auth/logout-todos", f.token(t, domain.RoleCustomer))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMiddlewareStatelessByDefault(t *testing.T) {
	f := newMiddlewareFixture(t, nil)
	token := f.token(t, domain.RoleCustomer)

	// No store is consulted, so a token whose session was deleted still passes.
	resp := f.do(t, http.MethodGet, "/conta/pedidos", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareRevocationCheck(t *testing.T) {
	t.Run("revoked session redirects and clears cookie", func(t *testing.T) {
		sessions := &stubSessions{exists: false}
		f := newMiddlewareFixture(t, sessions)

		resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.True(t, clearedCookie(resp))
		assert.Equal(t, 1, sessions.calls)
	})

	t.Run("store failure fails closed without clearing cookie", func(t *testing.T) {
		sessions := &stubSessions{err: errors.New("redis down")}
		f := newMiddlewareFixture(t, sessions)

		resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.False(t, clearedCookie(resp))

		entries := f.logs.FilterField(zap.String("event", "session_check_failed")).All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("live session passes", func(t *testing.T) {
		sessions := &stubSessions{exists: true}
		f := newMiddlewareFixture(t, sessions)

		resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestMiddlewareSessionCheckTimesOut(t *testing.T) {
	withTimeout := func(cfg *MiddlewareConfig) { cfg.StoreTimeout = 50 * time.Millisecond }

	t.Run("page request fails closed", func(t *testing.T) {
		sessions := &hangingSessions{}
		f := newMiddlewareFixture(t, sessions, withTimeout)

		start := time.Now()
		resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Location"), "/login")
		assert.False(t, clearedCookie(resp))
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.True(t, sessions.sawDeadline())
	})

	t.Run("api request gets 503", func(t *testing.T) {
		f := newMiddlewareFixture(t, &hangingSessions{}, withTimeout)

		resp := f.do(t, http.MethodPost, "/api/auth/logout-todos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("cached checker lookup carries a deadline", func(t *testing.T) {
		sessions := &hangingSessions{}
		checker := NewCachedSessionChecker(sessions, time.Minute, WithLookupTimeout(time.Second))
		f := newMiddlewareFixture(t, checker, withTimeout)

		resp := f.do(t, http.MethodGet, "/conta/pedidos", f.token(t, domain.RoleCustomer))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		require.Eventually(t, sessions.sawDeadline, time.Second, 5*time.Millisecond)
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
