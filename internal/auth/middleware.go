package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rpbarone/bdn-api-sub001/internal/access"
)

// Middleware returns a Fiber middleware that validates JWT tokens and sets
// the resolved Subject on the request. The access engine never sees an
// unauthenticated request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return unauthorized(c, "Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return unauthorized(c, "Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals("subject", access.Subject{
			ID:   claims.Subject,
			Role: claims.Role,
		})

		return c.Next()
	}
}

// GetSubject extracts the resolved Subject from a Fiber context.
func GetSubject(c *fiber.Ctx) (access.Subject, bool) {
	subject, ok := c.Locals("subject").(access.Subject)
	return subject, ok
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(access.ErrorResponse{
		Error: &access.AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg},
	})
}
