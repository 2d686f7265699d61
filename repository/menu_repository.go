package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeremiapane/bar-order-app/models"
)

type MenuRepository interface {
	ListActive(ctx context.Context) ([]models.MenuItem, error)
}

type gormMenuRepository struct {
	db *gorm.DB
}

func NewMenuRepository(db *gorm.DB) MenuRepository {
	return &gormMenuRepository{db: db}
}

func (r *gormMenuRepository) ListActive(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Find(&items).Error
	return items, err
}
