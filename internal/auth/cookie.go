package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// SessionCookieName is the cookie holding the signed session token.
const SessionCookieName = "token"

// CookieSettings controls attributes of the session cookie.
type CookieSettings struct {
	Name   string
	Secure bool
}

func (s CookieSettings) name() string {
	if s.Name == "" {
		return SessionCookieName
	}
	return s.Name
}

// Set writes the HTTP-only session cookie.
func (s CookieSettings) Set(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     s.name(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Clear expires the session cookie on the client.
func (s CookieSettings) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.name(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Read returns the session token from the cookie, falling back to a Bearer header for
// API clients that cannot hold cookies.
func (s CookieSettings) Read(c *fiber.Ctx) string {
	if token := c.Cookies(s.name()); token != "" {
		return token
	}
	return bearerToken(c.Get(fiber.HeaderAuthorization))
}
