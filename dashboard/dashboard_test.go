package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
)

type fakeStore struct {
	mu       sync.Mutex
	orders   []models.Order
	failures int
	calls    int32
}

func (s *fakeStore) fetch(context.Context) ([]models.Order, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store unavailable")
	}
	return append([]models.Order(nil), s.orders...), nil
}

func (s *fakeStore) add(o models.Order) {
	s.mu.Lock()
	s.orders = append(s.orders, o)
	s.mu.Unlock()
}

func waitUpdate(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("no update")
	}
}

func startView(t *testing.T, v *View) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- v.Run(ctx) }()
	return cancel, errc
}

func TestViewRefetchesOnChange(t *testing.T) {
	hub := kds.NewHub()
	store := &fakeStore{orders: []models.Order{{ID: "o1", Status: models.StatusNew}}}

	var alerts int32
	v := NewView(hub, store.fetch)
	v.OnNewOrder = func([]models.Order) { atomic.AddInt32(&alerts, 1) }
	cancel, errc := startView(t, v)

	waitUpdate(t, v.Updates())
	assert.Len(t, v.Snapshot(), 1)
	assert.Zero(t, atomic.LoadInt32(&alerts), "first load never alerts")

	store.add(models.Order{ID: "o2", Status: models.StatusNew})
	hub.Publish(kds.Event{Collection: models.TableOrders, Action: models.ActionInsert, RecordID: "o2", OrderID: "o2"})
	waitUpdate(t, v.Updates())

	assert.Len(t, v.Columns()[models.StatusNew], 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&alerts))
	assert.NoError(t, v.Err())
	assert.False(t, v.RefreshedAt().IsZero())

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Zero(t, hub.SubscriberCount(), "subscription torn down")
}

func TestViewManualRefresh(t *testing.T) {
	hub := kds.NewHub()
	store := &fakeStore{}
	v := NewView(hub, store.fetch)
	cancel, _ := startView(t, v)
	defer cancel()

	waitUpdate(t, v.Updates())
	store.add(models.Order{ID: "o1", Status: models.StatusInProgress})
	v.Refresh()
	waitUpdate(t, v.Updates())
	assert.Len(t, v.Columns()[models.StatusInProgress], 1)
}

func TestViewRetriesFailedFetch(t *testing.T) {
	hub := kds.NewHub()
	store := &fakeStore{orders: []models.Order{{ID: "o1", Status: models.StatusNew}}, failures: 2}
	v := NewView(hub, store.fetch)
	cancel, _ := startView(t, v)
	defer cancel()

	waitUpdate(t, v.Updates())
	assert.Len(t, v.Snapshot(), 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&store.calls))
	assert.NoError(t, v.Err())
}

func TestViewExposesErrorAfterGivingUp(t *testing.T) {
	hub := kds.NewHub()
	store := &fakeStore{failures: 1 << 20}
	v := NewView(hub, store.fetch)
	v.MaxRetryElapsed = 200 * time.Millisecond
	cancel, _ := startView(t, v)
	defer cancel()

	require.Eventually(t, func() bool { return v.Err() != nil }, 3*time.Second, 20*time.Millisecond)
	assert.Empty(t, v.Snapshot())
}

func TestViewStopsWhenFeedCloses(t *testing.T) {
	hub := kds.NewHub()
	v := NewView(hub, (&fakeStore{}).fetch)
	cancel, errc := startView(t, v)
	defer cancel()

	waitUpdate(t, v.Updates())
	hub.Close()
	assert.ErrorIs(t, <-errc, ErrFeedClosed)
}

func TestOrderWatcherMergesChangedFields(t *testing.T) {
	hub := kds.NewHub()
	created := time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)
	initial := models.Order{
		ID: "o1", OrderNumber: 7, GuestName: "Jane Doe", Status: models.StatusNew, CreatedAt: created,
		OrderItems: []models.OrderItem{{ItemName: "Old Fashioned", Quantity: 2}},
	}
	w := NewOrderWatcher(hub, initial)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	// other orders are filtered out
	hub.Publish(kds.Event{Collection: models.TableOrders, OrderID: "o2", Order: &models.Order{ID: "o2", Status: models.StatusCompleted}})

	changed := initial
	changed.Status = models.StatusInProgress
	changed.UpdatedAt = created.Add(time.Minute)
	changed.OrderItems = nil
	hub.Publish(kds.Event{Collection: models.TableOrders, Action: models.ActionUpdate, OrderID: "o1", RecordID: "o1", Order: &changed})
	waitUpdate(t, w.Updates())

	got := w.Order()
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, created.Add(time.Minute), got.UpdatedAt)
	assert.Len(t, got.OrderItems, 1, "items are kept from local state")
	assert.False(t, w.Deleted())

	hub.Publish(kds.Event{Collection: models.TableOrders, Action: models.ActionDelete, OrderID: "o1", RecordID: "o1"})
	waitUpdate(t, w.Updates())
	assert.True(t, w.Deleted())

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Zero(t, hub.SubscriberCount())
}

func TestOrderWatcherResyncsAfterSubscribing(t *testing.T) {
	hub := kds.NewHub()
	initial := models.Order{ID: "o1", GuestName: "Jane Doe", Status: models.StatusNew}
	w := NewOrderWatcher(hub, initial)
	w.Resync = func(context.Context) (*models.Order, error) {
		latest := initial
		latest.Status = models.StatusCompleted
		return &latest, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitUpdate(t, w.Updates())
	assert.Equal(t, models.StatusCompleted, w.Order().Status)
}
