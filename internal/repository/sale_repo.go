package repository

import (
	"context"
	"time"

	"retail-backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleFilter selects sales for listings and reports. Date bounds are inclusive.
type SaleFilter struct {
	DateStart     *time.Time
	DateEnd       *time.Time
	PaymentMethod string
	Channel       string
	ProductID     *uuid.UUID
	Limit         int
}

type SaleRepository interface {
	Create(tx *gorm.DB, sale *model.Sale) error
	NextReceiptNumber(tx *gorm.DB) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Sale, error)
	Find(ctx context.Context, filter SaleFilter) ([]model.Sale, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(tx *gorm.DB, id uuid.UUID, deletedBy string) error
}

type saleRepo struct {
	db *gorm.DB
}

func NewSaleRepo(db *gorm.DB) SaleRepository {
	return &saleRepo{db}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC")
}

func (r *saleRepo) Create(tx *gorm.DB, sale *model.Sale) error {
	return tx.Omit("CreatedByUser").Create(sale).Error
}

// NextReceiptNumber bumps the receipt counter inside tx. The UPDATE takes the
// row lock first, so concurrent sales get distinct numbers.
func (r *saleRepo) NextReceiptNumber(tx *gorm.DB) (int64, error) {
	res := tx.Model(&model.Counter{}).
		Where("name = ?", model.SaleReceiptCounter).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&model.Counter{Name: model.SaleReceiptCounter, Value: 1}).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}

	var counter model.Counter
	if err := tx.First(&counter, "name = ?", model.SaleReceiptCounter).Error; err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Preload("CreatedByUser").
		First(&sale, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepo) FindForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", preloadItems).
		First(&sale, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// Find returns matching sales newest first; equal dates keep receipt (insertion) order.
func (r *saleRepo) Find(ctx context.Context, filter SaleFilter) ([]model.Sale, error) {
	var sales []model.Sale
	query := r.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Preload("CreatedByUser")

	if filter.DateStart != nil {
		query = query.Where("sales.date >= ?", filter.DateStart.UTC())
	}
	if filter.DateEnd != nil {
		query = query.Where("sales.date <= ?", filter.DateEnd.UTC())
	}
	if filter.PaymentMethod != "" {
		query = query.Where("sales.payment_method = ?", filter.PaymentMethod)
	}
	if filter.Channel != "" {
		query = query.Where("sales.channel = ?", filter.Channel)
	}
	if filter.ProductID != nil {
		query = query.Where(
			"EXISTS (SELECT 1 FROM sale_items si WHERE si.sale_id = sales.id AND si.product_id = ?)",
			*filter.ProductID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	err := query.Order("sales.date DESC").Order("sales.receipt_number ASC").Find(&sales).Error
	return sales, err
}

func (r *saleRepo) UpdateDetails(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Sale{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *saleRepo) Delete(tx *gorm.DB, id uuid.UUID, deletedBy string) error {
	if err := tx.Model(&model.Sale{}).Where("id = ?", id).Update("deleted_by", deletedBy).Error; err != nil {
		return err
	}
	return tx.Delete(&model.Sale{}, "id = ?", id).Error
}
