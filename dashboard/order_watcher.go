package dashboard

import (
	"context"
	"sync"

	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/utils"
)

// OrderWatcher follows one order for the guest's order page. Changed fields carried by
// each event are merged into the local copy; nothing is refetched.
type OrderWatcher struct {
	hub Subscriber

	// Resync, when set, is called once after subscribing to pick up changes made between
	// the initial fetch and the subscription.
	Resync func(ctx context.Context) (*models.Order, error)

	mu      sync.RWMutex
	order   models.Order
	deleted bool

	updates chan struct{}
}

func NewOrderWatcher(hub Subscriber, initial models.Order) *OrderWatcher {
	return &OrderWatcher{hub: hub, order: initial, updates: make(chan struct{}, 1)}
}

// Run applies events until ctx ends or the feed shuts down.
func (w *OrderWatcher) Run(ctx context.Context) error {
	sub := w.hub.Subscribe(kds.OrderFilter(w.order.ID))
	defer sub.Close()

	if w.Resync != nil {
		latest, err := w.Resync(ctx)
		switch {
		case err == nil && latest != nil:
			w.mu.Lock()
			merge(&w.order, latest)
			w.mu.Unlock()
			w.notify()
		case err != nil:
			utils.ErrorLogger.Warnf("Order %s resync failed: %v", w.order.ID, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C:
			if !ok {
				return ErrFeedClosed
			}
			if w.apply(e) {
				w.notify()
			}
		}
	}
}

func (w *OrderWatcher) notify() {
	select {
	case w.updates <- struct{}{}:
	default:
	}
}

func (w *OrderWatcher) apply(e kds.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.Action == models.ActionDelete {
		w.deleted = true
		return true
	}
	if e.Order == nil {
		return false
	}
	merge(&w.order, e.Order)
	return true
}

// merge copies the row columns of src over dst; dst keeps its items.
func merge(dst *models.Order, src *models.Order) {
	dst.OrderNumber = src.OrderNumber
	dst.GuestName = src.GuestName
	dst.GroupName = src.GroupName
	dst.PhoneNumber = src.PhoneNumber
	dst.Status = src.Status
	dst.UpdatedAt = src.UpdatedAt
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if len(dst.OrderItems) == 0 {
		dst.OrderItems = src.OrderItems
	}
}

func (w *OrderWatcher) Order() models.Order {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.order
}

func (w *OrderWatcher) Deleted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deleted
}

func (w *OrderWatcher) Updates() <-chan struct{} { return w.updates }
