package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

type GuestController struct {
	Orders *services.OrderService
}

func NewGuestController(orders *services.OrderService) *GuestController {
	return &GuestController{Orders: orders}
}

// SearchGuests -> name suggestions for the order form
func (gc *GuestController) SearchGuests(c *gin.Context) {
	names, err := gc.Orders.SuggestGuestNames(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondServiceError(c, err, "failed to search guests")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Guest suggestions", gin.H{"names": names})
}

// GetHistory -> recent completed orders and the most popular drinks
func (gc *GuestController) GetHistory(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.HistoryLimit)
	if !ok {
		return
	}
	top, ok := intQuery(c, "top", services.HistoryTopDrinks)
	if !ok {
		return
	}

	history, err := gc.Orders.History(c.Request.Context(), limit, top)
	if err != nil {
		respondServiceError(c, err, "failed to load history")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order history", history)
}
