package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// tokenCookieName is the session cookie carrying the signed token.
const tokenCookieName = "token"

// userIDKey is the locals key holding the resolved caller identity.
const userIDKey = "userID"

// requireAuth resolves the caller identity from the session cookie (or a
// Bearer header as a fallback) and stores the user id in the request locals.
// Handlers behind it may assume callerID returns a verified identity.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := c.Cookies(tokenCookieName)
	if token == "" {
		if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Not authorized, no token"})
	}

	userID, err := s.users.ResolveIdentity(token)
	if err != nil {
		// expired and invalid tokens get the same generic response
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Not authorized, token failed"})
	}

	c.Locals(userIDKey, userID)
	return c.Next()
}

// callerID returns the identity stored by requireAuth.
func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

// setSessionCookie attaches the signed token as an httpOnly cookie. Cookie
// hardening follows the environment: production uses Secure + SameSite
// Strict, development settles for Lax so plain-HTTP clients still work.
func (s *Server) setSessionCookie(c *fiber.Ctx, token string) {
	sameSite := fiber.CookieSameSiteLaxMode
	if s.production {
		sameSite = fiber.CookieSameSiteStrictMode
	}

	c.Cookie(&fiber.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Expires:  time.Now().Add(s.cookieTTL),
		HTTPOnly: true,
		Secure:   s.production,
		SameSite: sameSite,
		Path:     "/",
	})
}

// clearSessionCookie instructs the client to discard its token. The token
// itself stays valid until natural expiry; there is no server-side
// revocation list.
func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	sameSite := fiber.CookieSameSiteLaxMode
	if s.production {
		sameSite = fiber.CookieSameSiteStrictMode
	}

	c.Cookie(&fiber.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   s.production,
		SameSite: sameSite,
		Path:     "/",
	})
}
