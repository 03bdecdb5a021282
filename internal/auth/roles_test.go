package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-auth/internal/domain"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

func TestRequireRole(t *testing.T) {
	newApp := func(role *domain.Role) *fiber.App {
		app := fiber.New(fiber.Config{
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
			},
		})
		app.Use(func(c *fiber.Ctx) error {
			if role != nil {
				storeClaims(c, &domain.SessionClaims{Subject: "u1", Role: *role})
			}
			return c.Next()
		})
		app.Get("/staff", RequireRole(domain.RoleAdmin, domain.RoleEmployee), func(c *fiber.Ctx) error {
			return c.SendStatus(http.StatusOK)
		})
		return app
	}

	cases := []struct {
		name string
		role *domain.Role
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"customer", ptr(domain.RoleCustomer), http.StatusForbidden},
		{"employee", ptr(domain.RoleEmployee), http.StatusOK},
		{"admin", ptr(domain.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := newApp(tc.role).Test(httptest.NewRequest(http.MethodGet, "/staff", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func ptr[T any](v T) *T { return &v }
