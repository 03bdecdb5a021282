package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/spec-kit/storefront-auth/internal/api/http/handlers"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/observability"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// AttemptsPerMinute limits credential-bearing requests per client IP. Zero disables it.
	AttemptsPerMinute int
}

// RegisterRoutes installs the authorization gate and wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.AuthMiddleware.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	authGroup := app.Group("/api/auth")
	authGroup.Post("/login", attemptLimiter(cfg.AttemptsPerMinute), cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/session", cfg.Auth.Session)
	authGroup.Post("/cadastro", attemptLimiter(cfg.AttemptsPerMinute), cfg.Auth.Register)
	authGroup.Post("/senha/esqueci", attemptLimiter(cfg.AttemptsPerMinute), cfg.Auth.RequestPasswordReset)
	authGroup.Post("/senha/redefinir", attemptLimiter(cfg.AttemptsPerMinute), cfg.Auth.ConfirmPasswordReset)
	authGroup.Post("/logout-todos", cfg.AuthMiddleware.RequireSession, auth.RequireRole(), cfg.Auth.LogoutAll)

	admin := app.Group("/api/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/sessao", cfg.Auth.Session)
}

func attemptLimiter(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.NewDomainError(apperrors.CodeRateLimited, "muitas tentativas, tente novamente em instantes", fiber.StatusTooManyRequests, nil)
		},
	})
}
