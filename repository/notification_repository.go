package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeremiapane/bar-order-app/models"
)

// NotificationLogRepository stores the SMS audit trail.
type NotificationLogRepository interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
	List(ctx context.Context, orderID string, limit int) ([]models.NotificationLog, error)
}

type gormNotificationLogRepository struct {
	db *gorm.DB
}

func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &gormNotificationLogRepository{db: db}
}

func (r *gormNotificationLogRepository) Create(ctx context.Context, entry *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormNotificationLogRepository) List(ctx context.Context, orderID string, limit int) ([]models.NotificationLog, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var logs []models.NotificationLog
	err := query.Find(&logs).Error
	return logs, err
}
