package controllers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/bar-order-app/dashboard"
	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
)

var allowedOrigin atomic.Value

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin, _ := allowedOrigin.Load().(string)
		if origin == "" || origin == "*" {
			return true
		}
		return r.Header.Get("Origin") == origin
	},
}

// SetAllowedOrigin restricts websocket handshakes to one browser origin; "*" allows any.
func SetAllowedOrigin(origin string) {
	allowedOrigin.Store(origin)
}

type FeedController struct {
	Feed       dashboard.Subscriber
	Orders     *services.OrderService
	StaleAfter time.Duration
}

func NewFeedController(feed dashboard.Subscriber, orders *services.OrderService, staleAfter time.Duration) *FeedController {
	return &FeedController{Feed: feed, Orders: orders, StaleAfter: staleAfter}
}

type boardFrame struct {
	Event string `json:"event"`
	orderBoard
	RefreshedAt time.Time `json:"refreshed_at"`
	NewOrder    bool      `json:"new_order"`
}

// DashboardFeed -> websocket for the bartender dashboard.
// mode=events (default) relays raw change events; mode=board pushes the refetched board.
func (fc *FeedController) DashboardFeed(c *gin.Context) {
	mode := c.DefaultQuery("mode", "events")
	if mode != "events" && mode != "board" {
		utils.RespondMessage(c, http.StatusBadRequest, "mode must be events or board")
		return
	}
	dateRange, err := services.ParseDateFilter(c.Query("range"))
	if err != nil {
		respondServiceError(c, err, "failed to open feed")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("Failed to upgrade feed connection: %v", err)
		return
	}

	if mode == "events" {
		kds.ServeClient(conn, fc.Feed.Subscribe(kds.DashboardFilter()), "bartender")
		return
	}
	fc.serveBoard(conn, dateRange)
}

func (fc *FeedController) serveBoard(conn *websocket.Conn, dateRange services.DateFilter) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := dashboard.NewView(fc.Feed, func(ctx context.Context) ([]models.Order, error) {
		return fc.Orders.ListOrders(ctx, services.OrderFilter{Range: dateRange, WithItems: true})
	})
	var newOrder atomic.Bool
	view.OnNewOrder = func([]models.Order) { newOrder.Store(true) }

	go func() {
		if err := view.Run(ctx); err == dashboard.ErrFeedClosed {
			cancel()
		}
	}()

	frames := make(chan interface{})
	go func() {
		defer close(frames)
		for {
			select {
			case <-view.Updates():
				frame := boardFrame{
					Event:       "board",
					orderBoard:  buildBoard(dateRange, dateRange.Label(), view.Snapshot(), time.Now(), fc.StaleAfter),
					RefreshedAt: view.RefreshedAt(),
					NewOrder:    newOrder.Swap(false),
				}
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	kds.Serve(conn, frames, "bartender")
}
