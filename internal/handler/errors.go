package handler

import (
	"errors"
	"log"

	"retail-backoffice/internal/middleware"
	"retail-backoffice/internal/service"
	"retail-backoffice/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeSKUExists         = "SKU_EXISTS"
	CodeCategoryInUse     = "CATEGORY_IN_USE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL"
)

// respondError maps service errors onto HTTP statuses in one place.
func respondError(c *fiber.Ctx, err error) error {
	var (
		stockErr *service.InsufficientStockError
		nfErr    *service.NotFoundError
		valErr   *service.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":       err.Error(),
			"code":        CodeInsufficientStock,
			"productId":   stockErr.ProductID,
			"productName": stockErr.ProductName,
			"requested":   stockErr.Requested,
			"available":   stockErr.Available,
		})
	case errors.As(err, &nfErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":    err.Error(),
			"code":     CodeNotFound,
			"resource": nfErr.Resource,
			"id":       nfErr.ID,
		})
	case errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  CodeValidation,
			"field": valErr.Field,
		})
	case errors.Is(err, service.ErrSKUExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": CodeSKUExists})
	case errors.Is(err, service.ErrCategoryInUse):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": CodeCategoryInUse})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUserInactive),
		errors.Is(err, service.ErrSessionReplaced),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrMissingToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": CodeUnauthorized})
	}

	log.Printf("%s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error", "code": CodeInternal})
}

func invalidJSON(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON", "code": CodeBadRequest})
}

func invalidID(c *fiber.Ctx, resource string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid " + resource + " ID", "code": CodeBadRequest})
}

// actor builds the service actor from the locals set by RequireAuth.
func actor(c *fiber.Ctx) service.Actor {
	a := service.SystemActor
	if id, ok := c.Locals(middleware.LocalUserID).(string); ok && id != "" {
		a = service.Actor{ID: id}
		a.Name, _ = c.Locals(middleware.LocalUserName).(string)
		a.Email, _ = c.Locals(middleware.LocalUserEmail).(string)
	}
	return a
}
