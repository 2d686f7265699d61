package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TableOrders     = "orders"
	TableOrderItems = "order_items"

	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// DBChange -> change-capture row written in the same transaction as the mutation it describes
type DBChange struct {
	ID         uint      `gorm:"primaryKey"`
	TableName  string    `gorm:"type:varchar(50);not null;index:idx_table_action"`
	RecordID   string    `gorm:"type:varchar(36);not null"`
	OrderID    string    `gorm:"type:varchar(36);index"`
	ActionType string    `gorm:"type:varchar(10);not null;index:idx_table_action"`
	ChangedAt  time.Time `gorm:"not null"`
	Processed  bool      `gorm:"default:false;index:idx_processed"`
}

func recordChange(tx *gorm.DB, table, recordID, orderID, action string) error {
	if recordID == "" {
		return nil
	}
	return tx.Create(&DBChange{
		TableName:  table,
		RecordID:   recordID,
		OrderID:    orderID,
		ActionType: action,
		ChangedAt:  time.Now(),
	}).Error
}
