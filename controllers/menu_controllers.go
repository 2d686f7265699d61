package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
	"github.com/yeremiapane/bar-order-app/views"
)

type MenuController struct {
	Orders *services.OrderService
}

func NewMenuController(orders *services.OrderService) *MenuController {
	return &MenuController{Orders: orders}
}

type menuEntry struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Ingredients string                   `json:"ingredients"`
	Category    string                   `json:"category"`
	Options     []views.DrinkOptionGroup `json:"options,omitempty"`
}

// GetMenu -> active drinks with their customisation options
func (mc *MenuController) GetMenu(c *gin.Context) {
	items, err := mc.Orders.ListMenu(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "failed to load menu")
		return
	}

	menu := make([]menuEntry, 0, len(items))
	for _, item := range items {
		menu = append(menu, menuEntry{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Ingredients: item.Ingredients,
			Category:    item.Category,
			Options:     views.DrinkOptions(item.Name),
		})
	}
	utils.RespondJSON(c, http.StatusOK, "List of drinks", menu)
}
