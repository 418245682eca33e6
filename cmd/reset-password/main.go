package main

import (
	"context"
	"flag"
	"log"

	"retail-backoffice/internal/config"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/service"
	"retail-backoffice/pkg/database"
	"retail-backoffice/pkg/jwt"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	email := flag.String("email", cfg.AdminEmail, "account to reset")
	password := flag.String("password", cfg.AdminPassword, "new password")
	flag.Parse()

	// 2. Setup Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 3. Reset, which also ends any open session
	authService := service.NewAuthService(
		repository.NewUserRepo(db),
		repository.NewRoleRepo(db),
		repository.NewPrivilegeRepo(db),
		jwt.NewManager(cfg.JWTSecret, cfg.JWTTTL),
	)
	if err := authService.ResetPassword(context.Background(), *email, *password); err != nil {
		log.Fatalf("Failed to reset password for %s: %v", *email, err)
	}

	log.Printf("Password for %s has been reset", *email)
}
