package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/database"
	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/notifier"
	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/router"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/telemetry"
	"github.com/yeremiapane/bar-order-app/utils"
)

const feedChannel = "bar-orders:feed"

// app holds the wired process. Close releases things in reverse start order.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	redis      *redis.Client
	hub        *kds.Hub
	dispatcher *notifier.Dispatcher
	monitor    *services.ChangeMonitor
	orders     *services.OrderService
	logs       repository.NotificationLogRepository
	engine     *gin.Engine

	cancel context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &app{cfg: cfg, cancel: cancel}

	db, err := database.Open(cfg.Database)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := database.SeedMenu(db); err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("seed menu: %w", err)
	}

	orderRepo := repository.NewOrderRepository(db)
	menuRepo := repository.NewMenuRepository(db)
	a.logs = repository.NewNotificationLogRepository(db)

	a.hub = kds.NewHub()
	var publisher kds.Publisher = a.hub
	var dedup notifier.Deduper = notifier.NewMemoryDeduper()

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close(context.Background())
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		bridge := kds.NewRedisBridge(a.hub, a.redis, feedChannel)
		select {
		case <-bridge.Run(ctx):
		case <-time.After(5 * time.Second):
			utils.ErrorLogger.Warn("Redis feed subscription not confirmed; continuing")
		}
		publisher = bridge
		dedup = notifier.NewRedisDeduper(a.redis)
		utils.InfoLogger.Infof("Change feed shared through redis at %s", cfg.Redis.Addr)
	}

	sender, err := newSender(ctx, cfg.SMS)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.dispatcher = notifier.NewDispatcher(sender, dedup, a.logs, notifier.Options{
		Workers:        cfg.SMS.Workers,
		QueueSize:      cfg.SMS.QueueSize,
		Timeout:        cfg.SMS.Timeout,
		RatePerSecond:  cfg.SMS.RatePerSecond,
		DedupTTL:       cfg.SMS.DedupTTL,
		BartenderPhone: cfg.SMS.BartenderPhone,
	})
	a.dispatcher.Start()

	authorizer := services.NewKeyAuthorizer(cfg.Auth.BartenderKey)
	a.orders = services.NewOrderService(orderRepo, menuRepo, a.dispatcher, authorizer, cfg.Orders, cfg.Venue.Location)

	a.monitor = services.NewChangeMonitor(db, publisher, cfg.ChangePollInterval)
	if cfg.ChangeRetention > 0 {
		a.monitor.Retention = cfg.ChangeRetention
	}
	a.monitor.Start()

	a.engine, err = router.SetupRouter(router.Dependencies{
		Config:           cfg,
		Orders:           a.orders,
		Feed:             a.hub,
		NotificationLogs: a.logs,
		Authorizer:       authorizer,
		Tokens:           utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	})
	if err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("setup router: %w", err)
	}
	return a, nil
}

func newSender(ctx context.Context, cfg config.SMS) (notifier.Sender, error) {
	switch cfg.Provider {
	case "twilio":
		sender, err := notifier.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.TwilioBaseURL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("twilio sender: %w", err)
		}
		return sender, nil
	case "sns":
		sender, err := notifier.NewSNSSender(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("sns sender: %w", err)
		}
		return sender, nil
	}
	utils.InfoLogger.Warn("SMS provider not configured; notifications will be logged only")
	return notifier.LogSender{}, nil
}

// Close stops the change monitor first so no event is published into a closed hub, then
// drains queued notifications and runs flush before the database goes away.
func (a *app) Close(ctx context.Context, flush ...telemetry.ShutdownFunc) {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	a.cancel()
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			utils.ErrorLogger.Errorf("Notification queue not drained: %v", err)
		}
	}
	for _, f := range flush {
		if f == nil {
			continue
		}
		if err := f(ctx); err != nil {
			utils.ErrorLogger.Errorf("Telemetry flush: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			utils.ErrorLogger.Errorf("Closing redis: %v", err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
