package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/pkg/jwt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrSessionReplaced    = errors.New("session expired (logged in on another device)")
	ErrUserNotFound       = errors.New("user not found")
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	ValidateToken(ctx context.Context, tokenString string) (*TokenValidationResponse, error)
	SessionUser(ctx context.Context, tokenString string) (*model.User, error)
	Bootstrap(ctx context.Context, adminEmail, adminPassword string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type LoginResponse struct {
	Token      string             `json:"token"`
	User       model.UserResponse `json:"user"`
	Role       *model.Role        `json:"role"`
	Privileges []string           `json:"privileges"`
}

type TokenValidationResponse struct {
	User       model.UserResponse `json:"user"`
	Role       *model.Role        `json:"role"`
	Privileges []string           `json:"privileges"`
}

type authService struct {
	userRepo      repository.UserRepository
	roleRepo      repository.RoleRepository
	privilegeRepo repository.PrivilegeRepository
	tokens        *jwt.Manager
	now           func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, roleRepo repository.RoleRepository, privRepo repository.PrivilegeRepository, tokens *jwt.Manager) AuthService {
	return &authService{
		userRepo:      userRepo,
		roleRepo:      roleRepo,
		privilegeRepo: privRepo,
		tokens:        tokens,
		now:           time.Now,
	}
}

// Login checks the credentials and starts a new session. Issuing a token
// rotates the user's token version, so older tokens stop validating.
func (s *authService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := &LoginRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := validate(req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(req.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	roleCode := ""
	if user.Role != nil {
		roleCode = user.Role.Code
	}

	version := uuid.NewString()
	now := s.now().UTC()
	if err := s.userRepo.UpdateSession(ctx, user.ID, version, now); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	user.TokenVersion = version
	user.LastSeenAt = &now

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.FullName, roleCode, user.GetPrivilegeCodes(), version)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:      token,
		User:       user.ToResponse(),
		Role:       user.Role,
		Privileges: user.GetPrivilegeCodes(),
	}, nil
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*TokenValidationResponse, error) {
	user, err := s.SessionUser(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return &TokenValidationResponse{
		User:       user.ToResponse(),
		Role:       user.Role,
		Privileges: user.GetPrivilegeCodes(),
	}, nil
}

// SessionUser resolves the user behind a token, enforcing one live session
// per user.
func (s *authService) SessionUser(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jwt.ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionReplaced
	}
	return user, nil
}

// Bootstrap seeds privileges and roles, grants each role its privileges and
// creates the master admin when no user holds adminEmail yet.
func (s *authService) Bootstrap(ctx context.Context, adminEmail, adminPassword string) error {
	if err := s.privilegeRepo.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed privileges: %w", err)
	}
	if err := s.roleRepo.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	all, err := s.privilegeRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range model.DefaultRoles {
		role, err := s.roleRepo.FindByCode(ctx, r.Code)
		if err != nil {
			return err
		}
		if err := s.roleRepo.ReplacePrivileges(ctx, role, model.PrivilegesFor(role.Code, all)); err != nil {
			return fmt.Errorf("grant %s privileges: %w", role.Code, err)
		}
	}

	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	if adminEmail == "" || adminPassword == "" {
		log.Println("Admin bootstrap skipped: ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}
	if _, err := s.userRepo.FindByEmail(ctx, adminEmail); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	role, err := s.roleRepo.FindByCode(ctx, model.RoleMasterAdmin)
	if err != nil {
		return err
	}
	admin := &model.User{
		Email:      adminEmail,
		FullName:   "Administrator",
		RoleID:     &role.ID,
		IsActive:   true,
		Privileges: all,
	}
	admin.CreatedBy = SystemActor.ID
	admin.UpdatedBy = SystemActor.ID
	if err := admin.SetPassword(adminPassword); err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Printf("Master admin %s created", adminEmail)
	return nil
}

// ResetPassword replaces a user's password and ends their sessions.
func (s *authService) ResetPassword(ctx context.Context, email, newPassword string) error {
	req := &ResetPasswordRequest{Email: strings.ToLower(strings.TrimSpace(email)), NewPassword: newPassword}
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, user.ID, user.Password)
}
