package models

import (
	"time"
)

const (
	NotificationSent      = "sent"
	NotificationFailed    = "failed"
	NotificationSkipped   = "skipped"
	NotificationDuplicate = "duplicate"
)

// NotificationLog -> audit row for every SMS dispatch attempt
type NotificationLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DedupKey  string    `gorm:"type:varchar(191);index" json:"dedup_key"`
	OrderID   string    `gorm:"type:varchar(36);index" json:"order_id"`
	Template  string    `gorm:"type:varchar(50);not null" json:"template"`
	Recipient string    `gorm:"type:varchar(32)" json:"recipient"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
