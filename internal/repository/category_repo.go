package repository

import (
	"context"
	"errors"
	"strings"

	"retail-backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryRepository interface {
	FindAll(ctx context.Context) ([]model.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Category, error)
	FindOrCreate(tx *gorm.DB, name, createdBy string) (*model.Category, error)
	Delete(ctx context.Context, id uuid.UUID, deletedBy string) error
}

type categoryRepo struct {
	db *gorm.DB
}

func NewCategoryRepo(db *gorm.DB) CategoryRepository {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) FindAll(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

func (r *categoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// FindOrCreate matches name case-insensitively and creates the category when absent.
func (r *categoryRepo) FindOrCreate(tx *gorm.DB, name, createdBy string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	var category model.Category
	err := tx.Unscoped().Where("LOWER(name) = ?", strings.ToLower(name)).First(&category).Error
	if err == nil {
		// Names stay reserved after a delete; bring the old row back
		if category.DeletedAt.Valid {
			if err := tx.Unscoped().Model(&category).Updates(map[string]interface{}{
				"deleted_at": nil,
				"deleted_by": "",
				"updated_by": createdBy,
			}).Error; err != nil {
				return nil, err
			}
			category.DeletedAt = gorm.DeletedAt{}
		}
		return &category, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	category = model.Category{Name: name}
	category.CreatedBy = createdBy
	category.UpdatedBy = createdBy
	if err := tx.Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepo) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Category{}).Where("id = ?", id).Update("deleted_by", deletedBy)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Delete(&model.Category{}, "id = ?", id).Error
	})
}
