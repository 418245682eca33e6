package repository

import (
	"context"
	"strings"

	"retail-backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows product listings. Zero values mean "any".
type ProductFilter struct {
	Search     string
	CategoryID *uuid.UUID
	Status     model.ProductStatus
	LowStock   bool
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindAll(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID, withDeleted bool) ([]model.Product, error)
	FindBySKU(ctx context.Context, sku string, withDeleted bool) (*model.Product, error)
	FindForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Product, error)
	Save(tx *gorm.DB, product *model.Product) error
	DecrementIfAvailable(tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) (bool, error)
	IncrementStock(tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) error
	Delete(ctx context.Context, id uuid.UUID, deletedBy string) error
	CountByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepo) FindAll(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	var products []model.Product
	query := r.db.WithContext(ctx).Preload("Category")

	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.LowStock {
		query = query.Where("stock <= min_stock")
	}

	err := query.Order("name ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Preload("Category").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads several products at once; withDeleted includes soft-deleted rows
// so historical sale lines can still be resolved.
func (r *productRepo) FindByIDs(ctx context.Context, ids []uuid.UUID, withDeleted bool) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	query := r.db.WithContext(ctx)
	if withDeleted {
		query = query.Unscoped()
	}
	err := query.Preload("Category").Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *productRepo) FindBySKU(ctx context.Context, sku string, withDeleted bool) (*model.Product, error) {
	var product model.Product
	query := r.db.WithContext(ctx)
	if withDeleted {
		query = query.Unscoped()
	}
	if err := query.First(&product, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindForUpdate reads a product inside tx holding a row lock (no-op on SQLite).
func (r *productRepo) FindForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) Save(tx *gorm.DB, product *model.Product) error {
	return tx.Omit("Category").Save(product).Error
}

// DecrementIfAvailable subtracts qty from stock only while stock >= qty.
// It reports false, without error, when the guard rejected the update.
func (r *productRepo) DecrementIfAvailable(tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) (bool, error) {
	res := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_by": updatedBy,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *productRepo) IncrementStock(tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) error {
	return tx.Unscoped().Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_by": updatedBy,
		}).Error
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).Where("id = ?", id).Update("deleted_by", deletedBy)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Delete(&model.Product{}, "id = ?", id).Error
	})
}

func (r *productRepo) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("category_id = ?", categoryID).Count(&count).Error
	return count, err
}
