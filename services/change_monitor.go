package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/utils"
)

const (
	changeBatchSize = 100

	DefaultChangeRetention = 24 * time.Hour
	pruneEvery             = time.Minute
)

// ChangeMonitor polls db_changes and turns each row into a feed event.
type ChangeMonitor struct {
	DB        *gorm.DB
	Publisher kds.Publisher
	Interval  time.Duration
	// processed rows older than this are deleted
	Retention time.Duration

	now       func() time.Time
	lastPrune time.Time
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewChangeMonitor(db *gorm.DB, publisher kds.Publisher, interval time.Duration) *ChangeMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &ChangeMonitor{
		DB:        db,
		Publisher: publisher,
		Interval:  interval,
		Retention: DefaultChangeRetention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (cm *ChangeMonitor) Start() {
	go func() {
		defer close(cm.done)
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cm.checkChanges()
			case <-cm.stopChan:
				return
			}
		}
	}()
}

// Stop ends polling and waits for an in-flight batch to finish.
func (cm *ChangeMonitor) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopChan)
		<-cm.done
	})
}

// checkChanges processes one batch and returns the number of rows handled.
func (cm *ChangeMonitor) checkChanges() int {
	var changes []models.DBChange
	var events []kds.Event

	err := cm.DB.Transaction(func(tx *gorm.DB) error {
		if err := cm.prune(tx); err != nil {
			return err
		}
		if err := tx.Clauses(pendingLock(tx.Dialector.Name())...).
			Where("processed = ?", false).
			Order("id ASC").
			Limit(changeBatchSize).
			Find(&changes).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(changes))
		for _, change := range changes {
			events = append(events, cm.toEvent(tx, change))
			ids = append(ids, change.ID)
		}

		return tx.Model(&models.DBChange{}).
			Where("id IN ?", ids).
			Update("processed", true).Error
	})
	if err != nil {
		utils.ErrorLogger.Printf("Error processing db changes: %v", err)
		return 0
	}

	// publish only after the batch is committed as processed
	for _, e := range events {
		cm.Publisher.Publish(e)
	}
	if len(changes) > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{"count": len(changes)}).Debug("Processed db changes")
	}
	return len(changes)
}

// prune deletes processed rows past the retention window, at most once per pruneEvery.
func (cm *ChangeMonitor) prune(tx *gorm.DB) error {
	now := cm.now()
	if cm.Retention <= 0 || now.Sub(cm.lastPrune) < pruneEvery {
		return nil
	}
	res := tx.Where("processed = ? AND changed_at < ?", true, now.Add(-cm.Retention)).
		Delete(&models.DBChange{})
	if res.Error != nil {
		return res.Error
	}
	cm.lastPrune = now
	if res.RowsAffected > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{"count": res.RowsAffected}).Debug("Pruned processed db changes")
	}
	return nil
}

// pendingLock lets several instances poll the same table without claiming the same rows.
// sqlite has no row locks and serialises writers anyway.
func pendingLock(dialect string) []clause.Expression {
	switch dialect {
	case "postgres", "mysql":
		return []clause.Expression{clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}}
	}
	return nil
}

func (cm *ChangeMonitor) toEvent(tx *gorm.DB, change models.DBChange) kds.Event {
	e := kds.Event{
		Type:       kds.EventChange,
		Collection: change.TableName,
		Action:     change.ActionType,
		RecordID:   change.RecordID,
		OrderID:    change.OrderID,
	}

	if change.TableName == models.TableOrders && change.ActionType != models.ActionDelete {
		var order models.Order
		err := tx.Preload("OrderItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).First(&order, "id = ?", change.RecordID).Error
		if err != nil {
			// the order may already be gone (compensated); subscribers refetch anyway
			utils.InfoLogger.Debugf("Change payload for order %s unavailable: %v", change.RecordID, err)
		} else {
			e.Order = &order
		}
	}
	return e
}
