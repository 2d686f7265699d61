package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/bar-order-app/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ListQuery -> optional filters for order listing; zero value lists everything
type ListQuery struct {
	From      *time.Time
	To        *time.Time
	Statuses  []models.OrderStatus
	WithItems bool
	Limit     int
	Ascending bool
}

// OrderRepository is the only write path to orders and order items.
type OrderRepository interface {
	// CreateOrder inserts the order row and assigns the next order number in one transaction.
	CreateOrder(ctx context.Context, order *models.Order) error

	// CreateItems inserts all items of one order as a batch.
	CreateItems(ctx context.Context, items []models.OrderItem) error

	// DeleteOrder removes an order and its items (compensating action only).
	DeleteOrder(ctx context.Context, id string) error

	// GetByID loads an order with its items.
	GetByID(ctx context.Context, id string) (*models.Order, error)

	// UpdateStatus moves order from -> to, failing with ErrStatusConflict if the stored
	// status is no longer from.
	UpdateStatus(ctx context.Context, order *models.Order, from, to models.OrderStatus) error

	List(ctx context.Context, q ListQuery) ([]models.Order, error)

	SearchGuestNames(ctx context.Context, prefix string, limit int) ([]string, error)
}

type gormOrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &gormOrderRepository{db: db}
}

func (r *gormOrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextOrderNumber(tx)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		return tx.Omit("OrderItems").Create(order).Error
	})
}

// nextOrderNumber bumps the sequence row; the row lock is held until commit so concurrent
// creators are serialised and numbers are never handed out twice.
func nextOrderNumber(tx *gorm.DB) (int64, error) {
	res := tx.Model(&models.OrderSequence{}).
		Where("name = ?", models.OrderNumberSequence).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("bump order sequence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		seq := models.OrderSequence{Name: models.OrderNumberSequence, Value: 1}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, fmt.Errorf("init order sequence: %w", err)
		}
		return seq.Value, nil
	}

	var seq models.OrderSequence
	if err := tx.First(&seq, "name = ?", models.OrderNumberSequence).Error; err != nil {
		return 0, fmt.Errorf("read order sequence: %w", err)
	}
	return seq.Value, nil
}

func (r *gormOrderRepository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *gormOrderRepository) DeleteOrder(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Order{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("OrderItems", orderItemsByCreation).
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderRepository) UpdateStatus(ctx context.Context, order *models.Order, from, to models.OrderStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(order).
			Where("status = ?", from).
			Updates(map[string]interface{}{
				"status":     to,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// rollback drops the change row written by the update hook
			return ErrStatusConflict
		}
		return nil
	})
}

func (r *gormOrderRepository) List(ctx context.Context, q ListQuery) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if q.From != nil {
		query = query.Where("created_at >= ?", q.From.UTC())
	}
	if q.To != nil {
		query = query.Where("created_at <= ?", q.To.UTC())
	}
	if len(q.Statuses) > 0 {
		query = query.Where("status IN ?", q.Statuses)
	}
	if q.WithItems {
		query = query.Preload("OrderItems", orderItemsByCreation)
	}
	if q.Ascending {
		query = query.Order("created_at ASC")
	} else {
		query = query.Order("created_at DESC")
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (r *gormOrderRepository) SearchGuestNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	pattern := likeEscaper.Replace(strings.ToLower(prefix)) + "%"

	var names []string
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Distinct("guest_name").
		Where("LOWER(guest_name) LIKE ? ESCAPE '!'", pattern).
		Order("guest_name ASC").
		Limit(limit).
		Pluck("guest_name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func orderItemsByCreation(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}
