package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"taskboard/apperr"
	"taskboard/auth"
)

const identityKey = "identity"

// Protected rejects requests without a valid token and stores the caller's
// Identity in the request locals.
func Protected(verifier auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return apperr.Unauthorized(apperr.ReasonTokenMalformed, "invalid authorization format")
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
		}

		identity, err := verifier.VerifyToken(token)
		if err != nil {
			return err
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// CurrentIdentity returns the identity stored by Protected.
func CurrentIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	identity, ok := c.Locals(identityKey).(auth.Identity)
	return identity, ok
}

// CurrentUserID returns the authenticated user id, or "" outside Protected.
func CurrentUserID(c *fiber.Ctx) string {
	identity, _ := CurrentIdentity(c)
	return identity.UserID
}
