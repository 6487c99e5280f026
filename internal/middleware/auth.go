package middleware

import (
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// AuthRequired admits requests carrying a valid bearer token and exposes the
// caller as Locals "user_id" and "role". Every rejection looks the same to the
// client.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := utils.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return unauthenticated(c)
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil {
			return unauthenticated(c)
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not_authenticated"})
}
