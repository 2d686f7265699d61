package views

import (
	"strings"
	"sync"

	"github.com/yeremiapane/bar-order-app/models"
)

// CartItem is one pending line before the order is submitted.
type CartItem struct {
	MenuItemID *string `json:"menu_item_id,omitempty"`
	ItemName   string  `json:"item_name"`
	Quantity   int     `json:"quantity"`
	Notes      string  `json:"notes,omitempty"`
	IsCustom   bool    `json:"is_custom"`
}

// Cart is the guest's in-progress order. Every mutation notifies subscribers with a copy
// of the new contents.
type Cart struct {
	mu        sync.Mutex
	items     []CartItem
	listeners map[int]func([]CartItem)
	nextID    int
}

func NewCart(items ...CartItem) *Cart {
	return &Cart{
		items:     append([]CartItem(nil), items...),
		listeners: make(map[int]func([]CartItem)),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (c *Cart) Subscribe(fn func([]CartItem)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cart) Add(item CartItem) {
	c.mutate(func(items []CartItem) []CartItem {
		return append(items, item)
	})
}

// Remove drops the line at index; out of range is ignored.
func (c *Cart) Remove(index int) {
	c.mutate(func(items []CartItem) []CartItem {
		if index < 0 || index >= len(items) {
			return items
		}
		return append(items[:index:index], items[index+1:]...)
	})
}

// UpdateQuantity ignores quantities below 1.
func (c *Cart) UpdateQuantity(index, quantity int) {
	if quantity < 1 {
		return
	}
	c.mutate(func(items []CartItem) []CartItem {
		if index >= 0 && index < len(items) {
			items[index].Quantity = quantity
		}
		return items
	})
}

func (c *Cart) UpdateNotes(index int, notes string) {
	c.mutate(func(items []CartItem) []CartItem {
		if index >= 0 && index < len(items) {
			items[index].Notes = notes
		}
		return items
	})
}

func (c *Cart) Clear() {
	c.mutate(func([]CartItem) []CartItem { return nil })
}

func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CartItem(nil), c.items...)
}

// ItemCount -> sum of quantities
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// ToOrderItems converts the cart into unsaved order lines.
func (c *Cart) ToOrderItems() []models.OrderItem {
	items := c.Items()
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		line := models.OrderItem{
			MenuItemID: item.MenuItemID,
			ItemName:   item.ItemName,
			Quantity:   item.Quantity,
			IsCustom:   item.IsCustom,
		}
		if notes := strings.TrimSpace(item.Notes); notes != "" {
			line.Notes = &notes
		}
		out = append(out, line)
	}
	return out
}

func (c *Cart) mutate(fn func([]CartItem) []CartItem) {
	c.mu.Lock()
	c.items = fn(c.items)
	snapshot := append([]CartItem(nil), c.items...)
	listeners := make([]func([]CartItem), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}
