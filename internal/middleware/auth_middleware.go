package middleware

import (
	"context"
	"strings"

	"retail-backoffice/internal/model"

	"github.com/gofiber/fiber/v2"
)

// Context keys set by RequireAuth.
const (
	LocalUserID         = "user_id"
	LocalUserEmail      = "user_email"
	LocalUserName       = "user_name"
	LocalUserPrivileges = "user_privileges"
)

// SessionResolver maps a bearer token to the user holding the live session.
type SessionResolver interface {
	SessionUser(ctx context.Context, tokenString string) (*model.User, error)
}

// RequireAuth is middleware that validates JWT token and sets user info in context.
// Websocket clients cannot set headers, so upgrades may pass ?token= instead.
func RequireAuth(sessions SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format. Use: Bearer <token>",
				"code":  "UNAUTHORIZED",
			})
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization token", "code": "UNAUTHORIZED"})
		}

		user, err := sessions.SessionUser(c.UserContext(), tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
		}

		// Set user info in context for downstream handlers
		c.Locals(LocalUserID, user.ID.String())
		c.Locals(LocalUserEmail, user.Email)
		c.Locals(LocalUserName, user.FullName)
		c.Locals(LocalUserPrivileges, user.GetPrivilegeCodes())

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return c.Query("token"), true
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// RequirePrivilege checks if the authenticated user has the required privilege
func RequirePrivilege(requiredPrivilege string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		privileges, ok := c.Locals(LocalUserPrivileges).([]string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "No privileges found", "code": "FORBIDDEN"})
		}

		for _, p := range privileges {
			if p == requiredPrivilege {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden: requires '" + requiredPrivilege + "' privilege",
			"code":  "FORBIDDEN",
		})
	}
}

// RequireAnyPrivilege checks if the user has at least one of the specified privileges
func RequireAnyPrivilege(requiredPrivileges ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		privileges, ok := c.Locals(LocalUserPrivileges).([]string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "No privileges found", "code": "FORBIDDEN"})
		}

		for _, userPriv := range privileges {
			for _, reqPriv := range requiredPrivileges {
				if userPriv == reqPriv {
					return c.Next()
				}
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden: requires one of " + strings.Join(requiredPrivileges, ", ") + " privileges",
			"code":  "FORBIDDEN",
		})
	}
}
