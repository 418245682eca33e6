package handler

import (
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ProductHandler struct {
	service service.ProductService
}

func NewProductHandler(s service.ProductService) *ProductHandler {
	return &ProductHandler{service: s}
}

// GetProducts lists the catalog.
// GET /api/v1/products?search&categoryId&status&lowStock
func (h *ProductHandler) GetProducts(c *fiber.Ctx) error {
	filter := repository.ProductFilter{
		Search:   c.Query("search"),
		LowStock: c.QueryBool("lowStock", false),
	}
	if raw := c.Query("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return invalidID(c, "category")
		}
		filter.CategoryID = &id
	}
	switch status := model.ProductStatus(c.Query("status")); status {
	case "", model.ProductActive, model.ProductInactive:
		filter.Status = status
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of: active inactive",
			"code":  CodeValidation,
			"field": "status",
		})
	}

	products, err := h.service.ListProducts(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "product")
	}
	p, err := h.service.GetProduct(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p.ToView())
}

// POST /api/v1/products
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req service.ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	p, err := h.service.CreateProduct(c.UserContext(), &req, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p.ToView())
}

// UpdateProduct replaces the editable fields.
// PUT /api/v1/products/:id
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "product")
	}
	var req service.ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	p, err := h.service.UpdateProduct(c.UserContext(), id, &req, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p.ToView())
}

// QuickUpdate patches stock, thresholds, prices or status.
// PATCH /api/v1/products/:id
func (h *ProductHandler) QuickUpdate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "product")
	}
	var req service.QuickUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	p, err := h.service.QuickUpdate(c.UserContext(), id, &req, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p.ToView())
}

// DELETE /api/v1/products/:id
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "product")
	}
	if err := h.service.DeleteProduct(c.UserContext(), id, actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Product deleted"})
}
