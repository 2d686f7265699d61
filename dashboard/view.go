// Package dashboard keeps bartender boards and guest order pages in step with the change feed.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/utils"
	"github.com/yeremiapane/bar-order-app/views"
)

var ErrFeedClosed = errors.New("change feed closed")

// Fetcher loads the full current order set the view displays.
type Fetcher func(ctx context.Context) ([]models.Order, error)

// Subscriber is satisfied by *kds.Hub.
type Subscriber interface {
	Subscribe(f kds.Filter) *kds.Subscription
}

// View refetches everything on every change notice and replaces its snapshot. Bursts of
// notices collapse into one refetch.
type View struct {
	hub   Subscriber
	fetch Fetcher

	// OnNewOrder fires when a refetch shows more new orders than the previous one.
	OnNewOrder func(orders []models.Order)
	// MaxRetryElapsed bounds retries of a single failed refetch.
	MaxRetryElapsed time.Duration

	mu        sync.RWMutex
	orders    []models.Order
	err       error
	refreshed time.Time
	detector  views.NewOrderDetector

	refresh chan struct{}
	updates chan struct{}
}

func NewView(hub Subscriber, fetch Fetcher) *View {
	return &View{
		hub:             hub,
		fetch:           fetch,
		MaxRetryElapsed: 30 * time.Second,
		refresh:         make(chan struct{}, 1),
		updates:         make(chan struct{}, 1),
	}
}

// Run loads the view and keeps it current until ctx ends or the feed shuts down. The
// subscription is released on return.
func (v *View) Run(ctx context.Context) error {
	sub := v.hub.Subscribe(kds.DashboardFilter())
	defer sub.Close()

	v.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.C:
			if !ok {
				return ErrFeedClosed
			}
			v.reload(ctx)
		case <-v.refresh:
			v.reload(ctx)
		}
	}
}

// Refresh asks a running view to refetch now.
func (v *View) Refresh() {
	select {
	case v.refresh <- struct{}{}:
	default:
	}
}

// Updates signals after every successful refetch; signals coalesce.
func (v *View) Updates() <-chan struct{} { return v.updates }

func (v *View) Snapshot() []models.Order {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.Order(nil), v.orders...)
}

func (v *View) Columns() views.Columns {
	return views.PartitionByStatus(v.Snapshot())
}

// Err -> last refetch failure; nil once a refetch succeeds again
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

func (v *View) RefreshedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.refreshed
}

func (v *View) reload(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	orders, err := backoff.Retry(ctx, func() ([]models.Order, error) {
		return v.fetch(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(v.MaxRetryElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			utils.ErrorLogger.Warnf("Dashboard refetch failed, retrying in %s: %v", next, err)
		}),
	)
	if err != nil {
		if ctx.Err() == nil {
			utils.ErrorLogger.Errorf("Dashboard refetch gave up: %v", err)
		}
		v.mu.Lock()
		v.err = err
		v.mu.Unlock()
		return
	}

	v.mu.Lock()
	v.orders = orders
	v.err = nil
	v.refreshed = time.Now()
	alert := v.detector.Observe(orders)
	v.mu.Unlock()

	if alert && v.OnNewOrder != nil {
		v.OnNewOrder(orders)
	}
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
