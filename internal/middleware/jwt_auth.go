package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/auth"
)

// ClaimsKey is the fiber.Locals key holding auth.Claims
const ClaimsKey = "claims"

// RequireJWT checks the HS256 bearer token on app-facing routes. An empty
// secret turns the check off (local development).
func RequireJWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := auth.ParseToken(strings.TrimSpace(token), secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}
