package service

import (
	"context"
	"errors"
	"strings"

	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/ws"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryService interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	EnsureCategory(ctx context.Context, name string, actor Actor) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID, actor Actor) error
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
	db           *gorm.DB
	wsHub        *ws.Hub
}

func NewCategoryService(cRepo repository.CategoryRepository, pRepo repository.ProductRepository, db *gorm.DB, hub *ws.Hub) CategoryService {
	return &categoryService{
		categoryRepo: cRepo,
		productRepo:  pRepo,
		db:           db,
		wsHub:        hub,
	}
}

func (s *categoryService) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.categoryRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []model.Category{}
	}
	return categories, nil
}

// EnsureCategory returns the category with this name, creating it if needed.
func (s *categoryService) EnsureCategory(ctx context.Context, name string, actor Actor) (*model.Category, error) {
	req := &CategoryRequest{Name: strings.TrimSpace(name)}
	if err := validate(req); err != nil {
		return nil, err
	}
	category, err := s.categoryRepo.FindOrCreate(s.db.WithContext(ctx), req.Name, actor.ID)
	if err != nil {
		return nil, err
	}
	s.wsHub.Emit(ws.Event{Type: "category", Action: "category_saved", Data: category, User: actor.wsUser()})
	return category, nil
}

// DeleteCategory refuses while any product still references the category.
func (s *categoryService) DeleteCategory(ctx context.Context, id uuid.UUID, actor Actor) error {
	inUse, err := s.productRepo.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return ErrCategoryInUse
	}
	if err := s.categoryRepo.Delete(ctx, id, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("category", id)
		}
		return err
	}
	s.wsHub.Emit(ws.Event{Type: "category", Action: "category_deleted", Data: map[string]interface{}{"id": id}, User: actor.wsUser()})
	return nil
}
