package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/config"
	"retail-backoffice/internal/handler"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/ws"
	"retail-backoffice/pkg/database"
	"retail-backoffice/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Setup Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx := context.Background()

	// 3. Dashboard cache
	var store cache.Store = cache.NoopStore{}
	if cfg.RedisAddr != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: Redis unavailable, dashboard cache disabled: %v", err)
		} else {
			defer redisStore.Close()
			store = redisStore
			log.Printf("Dashboard cache enabled (%s)", cfg.RedisAddr)
		}
	}

	// 4. Setup WebSocket Hub
	wsHub := ws.NewHub()
	go wsHub.Run()

	// 5. Dependency Injection (Wiring Layers)
	productRepo := repository.NewProductRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	saleRepo := repository.NewSaleRepo(db)
	userRepo := repository.NewUserRepo(db)
	privilegeRepo := repository.NewPrivilegeRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	tokens := jwt.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(userRepo, roleRepo, privilegeRepo, tokens)
	services := handler.Services{
		Auth:       authService,
		Sales:      service.NewSaleService(productRepo, saleRepo, db, wsHub, store),
		Reports:    service.NewReportService(saleRepo),
		Products:   service.NewProductService(productRepo, categoryRepo, db, wsHub, store),
		Categories: service.NewCategoryService(categoryRepo, productRepo, db, wsHub),
		Dashboard:  service.NewDashboardService(productRepo, saleRepo, store, cfg.Dashboard),
	}

	// 6. Seed privileges, roles and the master admin
	if err := authService.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Printf("Warning: Failed to bootstrap auth data: %v", err)
	}

	// 7. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
	})

	// Middleware
	app.Use(recover.New()) // Panic recovery
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))

	// 8. Routes
	handler.RegisterRoutes(app, services, wsHub)

	// 9. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
