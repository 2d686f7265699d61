package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/telemetry"
	"github.com/yeremiapane/bar-order-app/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	utils.ConfigureLogger(cfg.LogFormat, cfg.LogLevel)

	if cfg.GinMode == gin.ReleaseMode || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flushSentry, err := telemetry.InitSentry(cfg.SentryDSN, cfg.AppEnv)
	if err != nil {
		utils.ErrorLogger.Errorf("Sentry disabled: %v", err)
	}
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		utils.ErrorLogger.Errorf("Tracing disabled: %v", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to start: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.InfoLogger.Infof("Listening on port %s (venue timezone %s)", cfg.Port, cfg.Venue.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.InfoLogger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		utils.ErrorLogger.Errorf("Server stopped: %v", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Close(closeCtx, shutdownTracer, flushSentry)
}
