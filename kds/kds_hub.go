package kds

import (
	"sync"

	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/utils"
)

const EventChange = "change"

// Event -> "something changed" notice. Subscribers refetch; Order is only a convenience
// payload for single-order viewers and may be nil.
type Event struct {
	Type       string        `json:"event"`
	Collection string        `json:"collection"`
	Action     string        `json:"action"`
	RecordID   string        `json:"record_id"`
	OrderID    string        `json:"order_id,omitempty"`
	Order      *models.Order `json:"order,omitempty"`
}

// Filter -> empty Collections matches every collection; empty OrderID matches every order
type Filter struct {
	Collections []string
	OrderID     string
}

func (f Filter) Match(e Event) bool {
	if f.OrderID != "" && e.OrderID != f.OrderID {
		return false
	}
	if len(f.Collections) == 0 {
		return true
	}
	for _, c := range f.Collections {
		if c == e.Collection {
			return true
		}
	}
	return false
}

// DashboardFilter -> everything the bartender board watches
func DashboardFilter() Filter {
	return Filter{Collections: []string{models.TableOrders, models.TableOrderItems}}
}

// OrderFilter -> updates to a single order row
func OrderFilter(orderID string) Filter {
	return Filter{Collections: []string{models.TableOrders}, OrderID: orderID}
}

// Publisher is implemented by Hub and RedisBridge.
type Publisher interface {
	Publish(e Event)
}

// Subscription delivers matching events on C. C holds at most one pending event: a burst
// of changes collapses into the newest one. C is closed by Close or when the hub shuts down.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	filter Filter
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func (s *Subscription) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		return
	default:
	}
	// replace the stale pending event with the newest one
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Close unsubscribes; no event is delivered afterwards.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.shutdown()
}

// Hub fans change events out to subscribers (dashboards, order pages, websocket clients).
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	ch := make(chan Event, 1)
	sub := &Subscription{C: ch, ch: ch, filter: f, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.shutdown()
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Publish -> non-blocking fan-out to every matching subscriber
func (h *Hub) Publish(e Event) {
	if e.Type == "" {
		e.Type = EventChange
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	delivered := 0
	for sub := range h.subs {
		if sub.filter.Match(e) {
			sub.deliver(e)
			delivered++
		}
	}
	utils.InfoLogger.Debugf("Broadcast %s %s %s to %d subscribers", e.Collection, e.Action, e.RecordID, delivered)
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close shuts every subscription down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.shutdown()
		delete(h.subs, sub)
	}
}
