package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem is immutable once created; it is only removed when its order is rolled back.
type OrderItem struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID    string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	MenuItemID *string   `gorm:"type:varchar(36)" json:"menu_item_id"`
	ItemName   string    `gorm:"type:varchar(255);not null" json:"item_name"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Notes      *string   `gorm:"type:text" json:"notes"`
	IsCustom   bool      `gorm:"not null;default:false" json:"is_custom"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (i *OrderItem) AfterCreate(tx *gorm.DB) error {
	return recordChange(tx, TableOrderItems, i.ID, i.OrderID, ActionInsert)
}

func (i *OrderItem) AfterDelete(tx *gorm.DB) error {
	return recordChange(tx, TableOrderItems, i.ID, i.OrderID, ActionDelete)
}
