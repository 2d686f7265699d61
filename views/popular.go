package views

import (
	"sort"

	"github.com/yeremiapane/bar-order-app/models"
)

const CustomRequestBucket = "Custom Request"

type PopularDrink struct {
	ItemName   string `json:"item_name"`
	OrderCount int    `json:"order_count"`
	IsCustom   bool   `json:"is_custom"`
}

// PopularDrinks sums quantities per drink name with every custom item in one bucket,
// sorted by count descending (ties by name) and cut to topN. topN <= 0 keeps everything.
func PopularDrinks(items []models.OrderItem, topN int) []PopularDrink {
	counts := make(map[string]*PopularDrink)
	for _, item := range items {
		name := item.ItemName
		if item.IsCustom {
			name = CustomRequestBucket
		}
		entry, ok := counts[name]
		if !ok {
			entry = &PopularDrink{ItemName: name, IsCustom: item.IsCustom}
			counts[name] = entry
		}
		entry.OrderCount += item.Quantity
	}

	out := make([]PopularDrink, 0, len(counts))
	for _, entry := range counts {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderCount != out[j].OrderCount {
			return out[i].OrderCount > out[j].OrderCount
		}
		return out[i].ItemName < out[j].ItemName
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ItemsOf flattens the items of every order.
func ItemsOf(orders []models.Order) []models.OrderItem {
	var items []models.OrderItem
	for _, o := range orders {
		items = append(items, o.OrderItems...)
	}
	return items
}
