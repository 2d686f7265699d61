package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/controllers"
	"github.com/yeremiapane/bar-order-app/dashboard"
	"github.com/yeremiapane/bar-order-app/middlewares"
	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/telemetry"
	"github.com/yeremiapane/bar-order-app/utils"
)

const sessionName = "bar_session"

// Dependencies -> everything the HTTP layer needs, built by main
type Dependencies struct {
	Config           *config.Config
	Orders           *services.OrderService
	Feed             dashboard.Subscriber
	NotificationLogs repository.NotificationLogRepository
	Authorizer       services.Authorizer
	Tokens           *utils.TokenIssuer
}

func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config

	r := gin.New()
	r.Use(
		middlewares.Recovery(),
		middlewares.LoggerMiddleware(),
		otelgin.Middleware(telemetry.ServiceName),
		middlewares.SecurityHeaders(),
		middlewares.CORSMiddlewares(cfg.CORSAllowedOrigin),
	)
	controllers.SetAllowedOrigin(cfg.CORSAllowedOrigin)

	store := cookie.NewStore([]byte(cfg.Auth.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Auth.TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	orderController := controllers.NewOrderController(deps.Orders, deps.Feed, cfg.Orders.StaleAfter)
	menuController := controllers.NewMenuController(deps.Orders)
	guestController := controllers.NewGuestController(deps.Orders)
	exportController := controllers.NewExportController(deps.Orders, cfg.ExportFilenamePrefix)
	notificationController := controllers.NewNotificationController(deps.NotificationLogs)
	feedController := controllers.NewFeedController(deps.Feed, deps.Orders, cfg.Orders.StaleAfter)
	bartenderController, err := controllers.NewBartenderController(cfg.Auth, deps.Tokens)
	if err != nil {
		return nil, err
	}

	compress := gzip.Gzip(gzip.DefaultCompression)
	orderLimiter := middlewares.NewRateLimiter(rate.Every(6*time.Second), 10)
	requireBartender := middlewares.RequireBartender(deps.Authorizer)

	// without a dashboard password nobody can log in, so no session may be honored
	sessionTokens := deps.Tokens
	if !cfg.Auth.LoginEnabled() {
		sessionTokens = nil
	}

	api := r.Group("/api")
	api.Use(middlewares.CredentialMiddleware(sessionTokens))
	{
		// guest-facing
		api.GET("/menu", menuController.GetMenu)
		api.POST("/orders", orderLimiter.RateLimit(), orderController.CreateOrder)
		api.GET("/orders/:id", orderController.GetOrderByID)
		api.GET("/orders/:id/ws", middlewares.WebSocketOnly(), orderController.WatchOrder)
		api.GET("/guests/search", guestController.SearchGuests)
		api.GET("/history", compress, guestController.GetHistory)

		bartender := api.Group("/bartender")
		{
			bartender.POST("/login", middlewares.NewStrictRateLimiter(), bartenderController.Login)
			bartender.POST("/logout", bartenderController.Logout)
		}

		// key or session; the service authorizes status changes itself
		api.PATCH("/orders/:id", orderController.UpdateOrderStatus)
		api.POST("/orders/bulk-status", orderController.BulkUpdateStatus)

		api.GET("/orders", requireBartender, compress, orderController.ListOrders)
		api.GET("/exports/orders", requireBartender, compress, exportController.ExportOrders)
		api.GET("/notifications", requireBartender, notificationController.GetNotifications)
		api.GET("/feed/ws", middlewares.WebSocketOnly(), requireBartender, feedController.DashboardFeed)
	}

	return r, nil
}
