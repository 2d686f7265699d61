package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/dashboard"
	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/middlewares"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
	"github.com/yeremiapane/bar-order-app/views"
)

const maxListLimit = 500

type OrderController struct {
	Orders     *services.OrderService
	Feed       dashboard.Subscriber
	StaleAfter time.Duration

	now func() time.Time
}

func NewOrderController(orders *services.OrderService, feed dashboard.Subscriber, staleAfter time.Duration) *OrderController {
	if staleAfter <= 0 {
		staleAfter = views.DefaultStaleAfter
	}
	return &OrderController{Orders: orders, Feed: feed, StaleAfter: staleAfter, now: time.Now}
}

type createOrderItemRequest struct {
	services.CreateOrderItemInput
	// Options -> drink option selections keyed by group label, folded into notes
	Options map[string]string `json:"options"`
}

type createOrderRequest struct {
	GuestName   string                   `json:"guest_name"`
	PhoneNumber *string                  `json:"phone_number"`
	GroupName   *string                  `json:"group_name"`
	Items       []createOrderItemRequest `json:"items"`
}

func (r createOrderRequest) toInput() services.CreateOrderInput {
	in := services.CreateOrderInput{
		GuestName:   r.GuestName,
		PhoneNumber: r.PhoneNumber,
		GroupName:   r.GroupName,
		Items:       make([]services.CreateOrderItemInput, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		input := item.CreateOrderItemInput
		if groups := views.DrinkOptions(input.ItemName); len(groups) > 0 && len(item.Options) > 0 {
			notes := ""
			if input.Notes != nil {
				notes = *input.Notes
			}
			serialized := views.SerializeDrinkOptions(groups, item.Options, notes)
			input.Notes = &serialized
		}
		in.Items = append(in.Items, input)
	}
	return in
}

type statusRequest struct {
	Status       string `json:"status"`
	BartenderKey string `json:"bartender_key"`
}

type bulkStatusRequest struct {
	OrderIDs     []string `json:"order_ids"`
	Status       string   `json:"status"`
	BartenderKey string   `json:"bartender_key"`
}

type orderBoard struct {
	Range         services.DateFilter `json:"range"`
	Label         string              `json:"label"`
	Orders        []models.Order      `json:"orders"`
	Columns       views.Columns       `json:"columns"`
	TotalDrinks   int                 `json:"total_drinks"`
	StaleOrderIDs []string            `json:"stale_order_ids"`
}

type orderFrame struct {
	Event   string       `json:"event"`
	Order   models.Order `json:"order"`
	Deleted bool         `json:"deleted"`
}

// credential -> request credential, falling back to the key sent in the body
func credential(c *gin.Context, bodyKey string) services.Credential {
	cred := middlewares.CredentialFrom(c)
	if cred.Key == "" {
		cred.Key = strings.TrimSpace(bodyKey)
	}
	return cred
}

// respondBadBody answers an unreadable status body. Callers without a credential get the
// same 401 as any other unauthorized status change.
func (oc *OrderController) respondBadBody(c *gin.Context, err error) {
	if authErr := oc.Orders.Authorize(credential(c, "")); authErr != nil {
		respondServiceError(c, authErr, "failed to update order status")
		return
	}
	utils.RespondError(c, http.StatusBadRequest, err)
}

// publicOrder hides the guest's phone number on unauthenticated endpoints.
func publicOrder(o models.Order) models.Order {
	o.PhoneNumber = nil
	return o
}

// CreateOrder -> guest places an order
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.CreateOrder(c.Request.Context(), req.toInput())
	if err != nil {
		respondServiceError(c, err, "failed to create order")
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order placed", publicOrder(*order))
}

// GetOrderByID -> order with its drinks
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	order, err := oc.Orders.FetchOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to fetch order")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order details", publicOrder(*order))
}

// ListOrders -> bartender dashboard board for a date range
func (oc *OrderController) ListOrders(c *gin.Context) {
	loc := oc.Orders.Location()

	dateRange, err := services.ParseDateFilter(c.Query("range"))
	if err != nil {
		respondServiceError(c, err, "failed to list orders")
		return
	}
	filter := services.OrderFilter{Range: dateRange, WithItems: true}

	if filter.From, err = services.ParseTimeBound(c.Query("from"), loc, false); err != nil {
		respondServiceError(c, err, "failed to list orders")
		return
	}
	if filter.To, err = services.ParseTimeBound(c.Query("to"), loc, true); err != nil {
		respondServiceError(c, err, "failed to list orders")
		return
	}

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := models.ParseOrderStatus(s)
			if err != nil {
				utils.RespondError(c, http.StatusBadRequest, err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, ok := intQuery(c, "limit", 0)
		if !ok {
			return
		}
		filter.Limit = limit
	}

	orders, err := oc.Orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err, "failed to list orders")
		return
	}
	orders = views.FilterOrders(orders, c.Query("q"))

	label := dateRange.Label()
	if filter.From != nil || filter.To != nil {
		label = "Custom Range"
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", buildBoard(dateRange, label, orders, oc.now(), oc.StaleAfter))
}

func buildBoard(dateRange services.DateFilter, label string, orders []models.Order, now time.Time, staleAfter time.Duration) orderBoard {
	stale := []string{}
	for _, o := range orders {
		if views.IsStale(o, now, staleAfter) {
			stale = append(stale, o.ID)
		}
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orderBoard{
		Range:         dateRange,
		Label:         label,
		Orders:        orders,
		Columns:       views.PartitionByStatus(orders),
		TotalDrinks:   views.TotalDrinks(orders),
		StaleOrderIDs: stale,
	}
}

// UpdateOrderStatus -> bartender moves an order along
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		oc.respondBadBody(c, err)
		return
	}

	order, err := oc.Orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status, credential(c, req.BartenderKey))
	if err != nil {
		respondServiceError(c, err, "failed to update order status")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

// BulkUpdateStatus -> one status for several orders; per-order failures are in the results
func (oc *OrderController) BulkUpdateStatus(c *gin.Context) {
	var req bulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		oc.respondBadBody(c, err)
		return
	}

	results, err := oc.Orders.BulkUpdateStatus(c.Request.Context(), req.OrderIDs, req.Status, credential(c, req.BartenderKey))
	if err != nil {
		respondServiceError(c, err, "failed to update order statuses")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bulk status update finished", results)
}

// WatchOrder -> websocket pushing the guest's order whenever it changes
func (oc *OrderController) WatchOrder(c *gin.Context) {
	orderID := c.Param("id")
	order, err := oc.Orders.FetchOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err, "failed to fetch order")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("Failed to upgrade order %s connection: %v", orderID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := dashboard.NewOrderWatcher(oc.Feed, *order)
	watcher.Resync = func(ctx context.Context) (*models.Order, error) {
		return oc.Orders.FetchOrder(ctx, orderID)
	}
	go func() {
		if err := watcher.Run(ctx); err == dashboard.ErrFeedClosed {
			cancel()
		}
	}()

	frames := make(chan interface{})
	go func() {
		defer close(frames)
		send := func() bool {
			frame := orderFrame{Event: "order", Order: publicOrder(watcher.Order()), Deleted: watcher.Deleted()}
			select {
			case frames <- frame:
				return !frame.Deleted
			case <-ctx.Done():
				return false
			}
		}
		if !send() {
			return
		}
		for {
			select {
			case <-watcher.Updates():
				if !send() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	kds.Serve(conn, frames, "guest")
}
