package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/ws"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductService interface {
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]model.ProductView, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	CreateProduct(ctx context.Context, req *ProductRequest, actor Actor) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, req *ProductRequest, actor Actor) (*model.Product, error)
	QuickUpdate(ctx context.Context, id uuid.UUID, req *QuickUpdateRequest, actor Actor) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID, actor Actor) error
}

// ProductRequest is the product form. Category is a name, created on demand;
// a blank SKU is generated on create and left unchanged on update.
type ProductRequest struct {
	Name        string              `json:"name" validate:"required,max=255"`
	SKU         string              `json:"sku" validate:"max=50"`
	Category    string              `json:"category" validate:"max=100"`
	Distributor string              `json:"distributor" validate:"max=255"`
	CostPrice   decimal.Decimal     `json:"costPrice" validate:"gte=0,money"`
	PublicPrice decimal.Decimal     `json:"publicPrice" validate:"gte=0,money"`
	Stock       int                 `json:"stock" validate:"gte=0"`
	MinStock    *int                `json:"minStock" validate:"omitempty,gte=0"`
	Image       string              `json:"image" validate:"max=500"`
	Status      model.ProductStatus `json:"status" validate:"omitempty,oneof=active inactive"`
}

// QuickUpdateRequest patches the fields edited inline from the product list.
type QuickUpdateRequest struct {
	Stock       *int                 `json:"stock" validate:"omitempty,gte=0"`
	MinStock    *int                 `json:"minStock" validate:"omitempty,gte=0"`
	CostPrice   *decimal.Decimal     `json:"costPrice" validate:"omitempty,gte=0,money"`
	PublicPrice *decimal.Decimal     `json:"publicPrice" validate:"omitempty,gte=0,money"`
	Status      *model.ProductStatus `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (r *QuickUpdateRequest) empty() bool {
	return r.Stock == nil && r.MinStock == nil && r.CostPrice == nil && r.PublicPrice == nil && r.Status == nil
}

const skuAttempts = 5

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	db           *gorm.DB
	wsHub        *ws.Hub
	cache        cache.Store
}

func NewProductService(pRepo repository.ProductRepository, cRepo repository.CategoryRepository, db *gorm.DB, hub *ws.Hub, store cache.Store) ProductService {
	return &productService{
		productRepo:  pRepo,
		categoryRepo: cRepo,
		db:           db,
		wsHub:        hub,
		cache:        store,
	}
}

func (s *productService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]model.ProductView, error) {
	products, err := s.productRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]model.ProductView, len(products))
	for i := range products {
		views[i] = products[i].ToView()
	}
	return views, nil
}

func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := s.productRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("product", id)
	}
	return p, err
}

func (req *ProductRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Category = strings.TrimSpace(req.Category)
	req.Distributor = strings.TrimSpace(req.Distributor)
	req.Image = strings.TrimSpace(req.Image)
}

func (s *productService) CreateProduct(ctx context.Context, req *ProductRequest, actor Actor) (*model.Product, error) {
	req.normalize()
	if err := validate(req); err != nil {
		return nil, err
	}

	sku := req.SKU
	if sku == "" {
		var err error
		if sku, err = s.generateSKU(ctx); err != nil {
			return nil, err
		}
	} else if err := s.checkSKU(ctx, sku, uuid.Nil); err != nil {
		return nil, err
	}

	product := &model.Product{
		SKU:         sku,
		Name:        req.Name,
		Distributor: req.Distributor,
		CostPrice:   req.CostPrice,
		PublicPrice: req.PublicPrice,
		Stock:       req.Stock,
		MinStock:    model.DefaultMinStock,
		Image:       req.Image,
		Status:      model.ProductActive,
	}
	if req.MinStock != nil {
		product.MinStock = *req.MinStock
	}
	if req.Status != "" {
		product.Status = req.Status
	}
	product.CreatedBy = actor.ID
	product.UpdatedBy = actor.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assignCategory(tx, product, req.Category, actor); err != nil {
			return err
		}
		return s.productRepo.Save(tx, product)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrSKUExists
	}
	if err != nil {
		return nil, err
	}

	invalidateDashboard(ctx, s.cache)
	publishStock(s.wsHub, "product_created", product, 0, actor)
	s.notify("product_created", product, actor, fmt.Sprintf("%s created product '%s'", actor.Name, product.Name))
	return product, nil
}

// UpdateProduct replaces every editable field. The row is locked while the
// new values are applied so concurrent sales see either the old or new stock.
func (s *productService) UpdateProduct(ctx context.Context, id uuid.UUID, req *ProductRequest, actor Actor) (*model.Product, error) {
	req.normalize()
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.SKU != "" {
		if err := s.checkSKU(ctx, req.SKU, id); err != nil {
			return nil, err
		}
	}

	var (
		product  *model.Product
		oldStock int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		product, err = s.productRepo.FindForUpdate(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("product", id)
		}
		if err != nil {
			return err
		}
		oldStock = product.Stock

		if req.SKU != "" {
			product.SKU = req.SKU
		}
		product.Name = req.Name
		product.Distributor = req.Distributor
		product.CostPrice = req.CostPrice
		product.PublicPrice = req.PublicPrice
		product.Stock = req.Stock
		product.Image = req.Image
		if req.MinStock != nil {
			product.MinStock = *req.MinStock
		}
		if req.Status != "" {
			product.Status = req.Status
		}
		product.UpdatedBy = actor.ID

		if err := s.assignCategory(tx, product, req.Category, actor); err != nil {
			return err
		}
		return s.productRepo.Save(tx, product)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrSKUExists
	}
	if err != nil {
		return nil, err
	}

	invalidateDashboard(ctx, s.cache)
	publishStock(s.wsHub, "product_updated", product, oldStock, actor)
	s.notify("product_updated", product, actor, fmt.Sprintf("%s updated product '%s'", actor.Name, product.Name))
	return product, nil
}

func (s *productService) QuickUpdate(ctx context.Context, id uuid.UUID, req *QuickUpdateRequest, actor Actor) (*model.Product, error) {
	if req.empty() {
		return nil, invalid("", "at least one of stock, minStock, costPrice, publicPrice or status is required")
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	var (
		product  *model.Product
		oldStock int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		product, err = s.productRepo.FindForUpdate(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("product", id)
		}
		if err != nil {
			return err
		}
		oldStock = product.Stock

		if req.Stock != nil {
			product.Stock = *req.Stock
		}
		if req.MinStock != nil {
			product.MinStock = *req.MinStock
		}
		if req.CostPrice != nil {
			product.CostPrice = *req.CostPrice
		}
		if req.PublicPrice != nil {
			product.PublicPrice = *req.PublicPrice
		}
		if req.Status != nil {
			product.Status = *req.Status
		}
		product.UpdatedBy = actor.ID
		return s.productRepo.Save(tx, product)
	})
	if err != nil {
		return nil, err
	}

	invalidateDashboard(ctx, s.cache)
	publishStock(s.wsHub, "product_updated", product, oldStock, actor)
	return s.GetProduct(ctx, id)
}

func (s *productService) DeleteProduct(ctx context.Context, id uuid.UUID, actor Actor) error {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.productRepo.Delete(ctx, id, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("product", id)
		}
		return err
	}

	invalidateDashboard(ctx, s.cache)
	s.notify("product_deleted", product, actor, fmt.Sprintf("%s deleted product '%s'", actor.Name, product.Name))
	return nil
}

// assignCategory links the product to the named category, creating it when
// needed. A blank name clears the category.
func (s *productService) assignCategory(tx *gorm.DB, product *model.Product, name string, actor Actor) error {
	if name == "" {
		product.CategoryID = nil
		product.Category = nil
		return nil
	}
	category, err := s.categoryRepo.FindOrCreate(tx, name, actor.ID)
	if err != nil {
		return err
	}
	product.CategoryID = &category.ID
	product.Category = category
	return nil
}

// checkSKU fails when another product, deleted ones included, holds sku.
func (s *productService) checkSKU(ctx context.Context, sku string, self uuid.UUID) error {
	existing, err := s.productRepo.FindBySKU(ctx, sku, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != self {
		return ErrSKUExists
	}
	return nil
}

func (s *productService) generateSKU(ctx context.Context) (string, error) {
	for i := 0; i < skuAttempts; i++ {
		sku := newSKU()
		err := s.checkSKU(ctx, sku, uuid.Nil)
		if err == nil {
			return sku, nil
		}
		if !errors.Is(err, ErrSKUExists) {
			return "", err
		}
	}
	return "", fmt.Errorf("could not generate a free SKU after %d attempts", skuAttempts)
}

// newSKU returns "SKU-" followed by 8 upper-case hex digits.
func newSKU() string {
	id := uuid.New()
	return "SKU-" + strings.ToUpper(fmt.Sprintf("%x", id[:4]))
}

func (s *productService) notify(action string, p *model.Product, actor Actor, message string) {
	s.wsHub.Emit(ws.Event{
		Type:   "product",
		Action: action,
		Data: map[string]interface{}{
			"id":          p.ID,
			"sku":         p.SKU,
			"name":        p.Name,
			"stock":       p.Stock,
			"publicPrice": p.PublicPrice,
			"status":      p.Status,
		},
		User:    actor.wsUser(),
		Message: message,
	})
}
