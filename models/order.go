package models

import (
	"time"

	"gorm.io/gorm"
)

type Order struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderNumber int64       `gorm:"uniqueIndex;not null" json:"order_number"`
	GuestName   string      `gorm:"type:varchar(255);not null;index" json:"guest_name"`
	GroupName   *string     `gorm:"type:varchar(255)" json:"group_name"`
	PhoneNumber *string     `gorm:"type:varchar(32)" json:"phone_number,omitempty"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`
	OrderItems  []OrderItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"order_items,omitempty"`
}

// HasPhone -> true when a non-empty phone number is on file
func (o *Order) HasPhone() bool {
	return o.PhoneNumber != nil && *o.PhoneNumber != ""
}

// TotalQuantity -> sum of item quantities
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.OrderItems {
		total += item.Quantity
	}
	return total
}

func (o *Order) AfterCreate(tx *gorm.DB) error {
	return recordChange(tx, TableOrders, o.ID, o.ID, ActionInsert)
}

func (o *Order) AfterUpdate(tx *gorm.DB) error {
	return recordChange(tx, TableOrders, o.ID, o.ID, ActionUpdate)
}

func (o *Order) AfterDelete(tx *gorm.DB) error {
	return recordChange(tx, TableOrders, o.ID, o.ID, ActionDelete)
}

// OrderSequence -> counter row backing order numbers; never decremented
type OrderSequence struct {
	Name  string `gorm:"primaryKey;type:varchar(50)"`
	Value int64  `gorm:"not null;default:0"`
}

const OrderNumberSequence = "order_number"
