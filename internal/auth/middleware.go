package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/observability"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

const claimsKey = "auth_claims"

type claimsCtxKey struct{}

const defaultStoreTimeout = 2 * time.Second

// Decision labels recorded for every request passing the middleware.
const (
	DecisionAllow         = "allow"
	DecisionRedirectLogin = "redirect_login"
	DecisionRedirectHome  = "redirect_home"
	DecisionReject        = "reject"
)

// SessionChecker confirms that a token's server-side session still exists.
type SessionChecker interface {
	Exists(ctx context.Context, token string) (bool, error)
}

// MiddlewareConfig bundles AuthMiddleware collaborators.
type MiddlewareConfig struct {
	Routes  *RouteTable
	Cookie  CookieSettings
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Sessions enables a per-request revocation check. Nil keeps validation stateless:
	// a logged-out token stays usable until it expires.
	Sessions SessionChecker
	// StoreTimeout bounds each session check. Zero means two seconds.
	StoreTimeout time.Duration
	// APIPrefix marks paths that get JSON errors instead of redirects.
	APIPrefix string
}

// AuthMiddleware gates every request on route classification, token validity and role.
type AuthMiddleware struct {
	tokens    *TokenManager
	routes    *RouteTable
	cookie    CookieSettings
	logger    *zap.Logger
	metrics   *observability.Metrics
	sessions  SessionChecker
	timeout   time.Duration
	apiPrefix string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, cfg MiddlewareConfig) *AuthMiddleware {
	if cfg.Routes == nil {
		cfg.Routes = NewRouteTable(RouteTableConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &AuthMiddleware{
		tokens:    tokens,
		routes:    cfg.Routes,
		cookie:    cfg.Cookie,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		sessions:  cfg.Sessions,
		timeout:   cfg.StoreTimeout,
		apiPrefix: cfg.APIPrefix,
	}
}

// Handle runs once per request before any page or API handler.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	path := c.Path()

	if m.routes.IsAuthPage(path) {
		if claims, ok := m.currentClaims(c); ok {
			return m.redirect(c, claims.Role.HomeRoute(), DecisionRedirectHome, "already_authenticated")
		}
		m.record(DecisionAllow, "auth_page")
		return c.Next()
	}

	if m.routes.IsPublic(path) {
		m.record(DecisionAllow, "public")
		return c.Next()
	}

	raw := m.cookie.Read(c)
	if raw == "" {
		return m.unauthenticated(c, "missing_token", false)
	}

	result := m.tokens.Verify(raw)
	if !result.Valid {
		reason := "token_malformed"
		if result.Expired {
			reason = "token_expired"
		}
		return m.unauthenticated(c, reason, true)
	}

	if m.sessions != nil {
		exists, err := m.sessionExists(c, raw)
		if err != nil {
			m.logger.Warn("session check failed",
				zap.String("event", "session_check_failed"),
				zap.String("path", path),
				zap.Error(err))
			return m.unauthenticated(c, "session_check_failed", false)
		}
		if !exists {
			return m.unauthenticated(c, "session_revoked", true)
		}
	}

	claims := result.Claims
	if !m.routes.RoleAllowed(path, claims.Role) {
		if m.isAPI(path) {
			m.record(DecisionReject, "forbidden_role")
			return apperrors.NewForbidden("insufficient role")
		}
		return m.redirect(c, claims.Role.HomeRoute(), DecisionRedirectHome, "forbidden_role")
	}

	m.record(DecisionAllow, "authenticated")
	storeClaims(c, claims)
	return c.Next()
}

// RequireSession authenticates API routes that sit under a public prefix, answering
// 401 instead of redirecting.
func (m *AuthMiddleware) RequireSession(c *fiber.Ctx) error {
	if _, ok := ClaimsFromContext(c); ok {
		return c.Next()
	}
	raw := m.cookie.Read(c)
	if raw == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	result := m.tokens.Verify(raw)
	if !result.Valid {
		return tokenError(result)
	}
	if m.sessions != nil {
		exists, err := m.sessionExists(c, raw)
		if err != nil {
			return apperrors.NewPersistenceFailure(err)
		}
		if !exists {
			return apperrors.NewDomainError(apperrors.CodeTokenMalformed, "session revoked", http.StatusUnauthorized, nil)
		}
	}
	storeClaims(c, result.Claims)
	return c.Next()
}

func (m *AuthMiddleware) currentClaims(c *fiber.Ctx) (*domain.SessionClaims, bool) {
	raw := m.cookie.Read(c)
	if raw == "" {
		return nil, false
	}
	result := m.tokens.Verify(raw)
	if !result.Valid {
		return nil, false
	}
	if m.sessions != nil {
		exists, err := m.sessionExists(c, raw)
		if err != nil || !exists {
			return nil, false
		}
	}
	return result.Claims, true
}

// sessionExists fails with context.DeadlineExceeded when the store does not answer in time.
func (m *AuthMiddleware) sessionExists(c *fiber.Ctx, raw string) (bool, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), m.timeout)
	defer cancel()
	return m.sessions.Exists(ctx, raw)
}

func (m *AuthMiddleware) unauthenticated(c *fiber.Ctx, reason string, clearCookie bool) error {
	if clearCookie {
		m.cookie.Clear(c)
	}
	m.logger.Debug("request not authenticated",
		zap.String("event", "auth_denied"),
		zap.String("path", c.Path()),
		zap.String("reason", reason))

	if m.isAPI(c.Path()) {
		m.record(DecisionReject, reason)
		code := apperrors.CodeUnauthorized
		switch reason {
		case "token_expired":
			code = apperrors.CodeTokenExpired
		case "token_malformed", "session_revoked":
			code = apperrors.CodeTokenMalformed
		}
		return apperrors.NewDomainError(code, "authentication required", http.StatusUnauthorized, nil)
	}
	return m.redirect(c, m.routes.LoginRedirect(c.OriginalURL()), DecisionRedirectLogin, reason)
}

func (m *AuthMiddleware) redirect(c *fiber.Ctx, location, decision, reason string) error {
	m.record(decision, reason)
	return c.Redirect(location, fiber.StatusFound)
}

func (m *AuthMiddleware) record(decision, reason string) {
	m.metrics.RecordAuthDecision(decision, reason)
}

func (m *AuthMiddleware) isAPI(path string) bool {
	return strings.HasPrefix(path, m.apiPrefix)
}

func tokenError(result Verification) error {
	if result.Expired {
		return apperrors.NewDomainError(apperrors.CodeTokenExpired, "session expired", http.StatusUnauthorized, nil)
	}
	return apperrors.NewDomainError(apperrors.CodeTokenMalformed, "invalid session token", http.StatusUnauthorized, nil)
}

func storeClaims(c *fiber.Ctx, claims *domain.SessionClaims) {
	c.Locals(claimsKey, claims)
	c.SetUserContext(WithClaims(c.UserContext(), claims))
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClaimsFromContext retrieves the authenticated identity.
func ClaimsFromContext(c *fiber.Ctx) (*domain.SessionClaims, bool) {
	val := c.Locals(claimsKey)
	if val == nil {
		return nil, false
	}
	claims, ok := val.(*domain.SessionClaims)
	return claims, ok
}

// WithClaims attaches claims to a context for code below the HTTP layer.
func WithClaims(ctx context.Context, claims *domain.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClaimsFromUserContext is the context.Context counterpart of ClaimsFromContext.
func ClaimsFromUserContext(ctx context.Context) (*domain.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*domain.SessionClaims)
	return claims, ok
}
