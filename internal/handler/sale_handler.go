package handler

import (
	"retail-backoffice/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SaleHandler struct {
	sales   service.SaleService
	reports service.ReportService
}

func NewSaleHandler(sales service.SaleService, reports service.ReportService) *SaleHandler {
	return &SaleHandler{sales: sales, reports: reports}
}

// CreateSale registers a cart.
// POST /api/v1/sales
func (h *SaleHandler) CreateSale(c *fiber.Ctx) error {
	var req service.CreateSaleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	sale, err := h.sales.CreateSale(c.UserContext(), &req, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sale)
}

func saleQuery(c *fiber.Ctx) (service.SaleQuery, error) {
	return service.ParseSaleQuery(
		c.Query("startDate"),
		c.Query("endDate"),
		c.Query("paymentMethod"),
		c.Query("channel"),
		c.Query("productId"),
	)
}

// GetSales lists sales newest first.
// GET /api/v1/sales?startDate&endDate&paymentMethod&channel&productId
func (h *SaleHandler) GetSales(c *fiber.Ctx) error {
	q, err := saleQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	sales, err := h.reports.ListSales(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sales)
}

// GET /api/v1/sales/by-product
func (h *SaleHandler) GetSalesByProduct(c *fiber.Ctx) error {
	q, err := saleQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	rows, err := h.reports.SalesByProduct(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rows)
}

// GET /api/v1/sales/summary
func (h *SaleHandler) GetSummary(c *fiber.Ctx) error {
	q, err := saleQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	sum, err := h.reports.Summary(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sum)
}

// GET /api/v1/sales/:id
func (h *SaleHandler) GetSale(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "sale")
	}
	sale, err := h.sales.GetSale(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sale)
}

// UpdateSale corrects payment method, channel or customer.
// PUT /api/v1/sales/:id
func (h *SaleHandler) UpdateSale(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "sale")
	}
	var req service.UpdateSaleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	sale, err := h.sales.UpdateSale(c.UserContext(), id, &req, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sale)
}

// DeleteSale removes a sale; ?restock=true returns its quantities to stock.
// DELETE /api/v1/sales/:id
func (h *SaleHandler) DeleteSale(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidID(c, "sale")
	}
	restock := c.QueryBool("restock", false)

	if err := h.sales.DeleteSale(c.UserContext(), id, restock, actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Sale deleted", "restocked": restock})
}
