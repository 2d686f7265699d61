package views

import (
	"strconv"
	"strings"
	"time"

	"github.com/yeremiapane/bar-order-app/models"
)

const DefaultStaleAfter = 10 * time.Minute

// FilterOrders keeps orders whose guest name, order number, group name or any item name
// contains query, case-insensitively. A blank query returns orders unchanged.
func FilterOrders(orders []models.Order, query string) []models.Order {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return orders
	}

	var out []models.Order
	for _, o := range orders {
		if matchesOrder(o, q) {
			out = append(out, o)
		}
	}
	return out
}

func matchesOrder(o models.Order, q string) bool {
	if strings.Contains(strings.ToLower(o.GuestName), q) {
		return true
	}
	if strings.Contains(strconv.FormatInt(o.OrderNumber, 10), q) {
		return true
	}
	if o.GroupName != nil && strings.Contains(strings.ToLower(*o.GroupName), q) {
		return true
	}
	for _, item := range o.OrderItems {
		if strings.Contains(strings.ToLower(item.ItemName), q) {
			return true
		}
	}
	return false
}

// Columns -> dashboard board, one column per status
type Columns map[models.OrderStatus][]models.Order

// PartitionByStatus keeps the input order inside each column. Every status has an entry.
func PartitionByStatus(orders []models.Order) Columns {
	cols := make(Columns, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		cols[s] = []models.Order{}
	}
	for _, o := range orders {
		cols[o.Status] = append(cols[o.Status], o)
	}
	return cols
}

func TotalDrinks(orders []models.Order) int {
	total := 0
	for i := range orders {
		total += orders[i].TotalQuantity()
	}
	return total
}

// IsStale flags non-terminal orders older than threshold.
func IsStale(o models.Order, now time.Time, threshold time.Duration) bool {
	if o.Status.Terminal() {
		return false
	}
	return now.Sub(o.CreatedAt) > threshold
}

// DrinkSummary -> "2x Old Fashioned, Martini"
func DrinkSummary(items []models.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity > 1 {
			parts = append(parts, strconv.Itoa(item.Quantity)+"x "+item.ItemName)
		} else {
			parts = append(parts, item.ItemName)
		}
	}
	return strings.Join(parts, ", ")
}

// PrivacyName -> "Jane D." for "Jane Doe"; single names are returned as is
func PrivacyName(fullName string) string {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	last := []rune(parts[len(parts)-1])
	return parts[0] + " " + string(last[0]) + "."
}

// NewOrderDetector compares the count of new orders between consecutive refetches. The
// baseline starts at zero and the first observation only sets it, so a reload never alerts.
type NewOrderDetector struct {
	last   int
	primed bool
}

// Observe returns true when the number of new orders grew since the previous call.
func (d *NewOrderDetector) Observe(orders []models.Order) bool {
	count := 0
	for _, o := range orders {
		if o.Status == models.StatusNew {
			count++
		}
	}
	increased := d.primed && count > d.last
	d.last = count
	d.primed = true
	return increased
}
