package handler

import (
	"retail-backoffice/internal/middleware"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Services bundles what the routes dispatch to.
type Services struct {
	Auth       service.AuthService
	Sales      service.SaleService
	Reports    service.ReportService
	Products   service.ProductService
	Categories service.CategoryService
	Dashboard  service.DashboardService
}

// RegisterRoutes mounts the API under /api/v1 and the live event socket at /ws.
func RegisterRoutes(app *fiber.App, s Services, hub *ws.Hub) {
	authHandler := NewAuthHandler(s.Auth)
	saleHandler := NewSaleHandler(s.Sales, s.Reports)
	productHandler := NewProductHandler(s.Products)
	categoryHandler := NewCategoryHandler(s.Categories)
	dashHandler := NewDashboardHandler(s.Dashboard)

	requireAuth := middleware.RequireAuth(s.Auth)
	can := middleware.RequirePrivilege

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "wsClients": hub.ClientCount()})
	})
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/validate-token", authHandler.ValidateToken)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", requireAuth)

	protected.Get("/dashboard/stats", can(model.PrivDashboardView), dashHandler.GetDashboardStats)

	// Sales (static paths before /:id)
	protected.Post("/sales", can(model.PrivSaleCreate), saleHandler.CreateSale)
	protected.Get("/sales", middleware.RequireAnyPrivilege(model.PrivSaleView, model.PrivReportView), saleHandler.GetSales)
	protected.Get("/sales/by-product", can(model.PrivReportView), saleHandler.GetSalesByProduct)
	protected.Get("/sales/summary", can(model.PrivReportView), saleHandler.GetSummary)
	protected.Get("/sales/:id", can(model.PrivSaleView), saleHandler.GetSale)
	protected.Put("/sales/:id", can(model.PrivSaleUpdate), saleHandler.UpdateSale)
	protected.Delete("/sales/:id", can(model.PrivSaleDelete), saleHandler.DeleteSale)

	// Products
	protected.Get("/products", can(model.PrivProductView), productHandler.GetProducts)
	protected.Post("/products", can(model.PrivProductCreate), productHandler.CreateProduct)
	protected.Get("/products/:id", can(model.PrivProductView), productHandler.GetProduct)
	protected.Put("/products/:id", can(model.PrivProductUpdate), productHandler.UpdateProduct)
	protected.Patch("/products/:id", can(model.PrivProductUpdate), productHandler.QuickUpdate)
	protected.Delete("/products/:id", can(model.PrivProductDelete), productHandler.DeleteProduct)

	// Categories
	protected.Get("/categories", can(model.PrivProductView), categoryHandler.GetCategories)
	protected.Post("/categories", can(model.PrivCategoryCreate), categoryHandler.CreateCategory)
	protected.Delete("/categories/:id", can(model.PrivCategoryDelete), categoryHandler.DeleteCategory)

	// WebSocket Route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	}, requireAuth)
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.Register <- c
		defer func() { hub.Unregister <- c }()

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))
}
