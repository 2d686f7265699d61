package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/dashboard"
	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/notifier"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/views"
)

const bartenderKey = "bar-secret"

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		AppEnv: "test",
		Port:   "0",
		Database: config.Database{
			Driver: "sqlite",
			DSN:    filepath.Join(t.TempDir(), "bar.db"),
		},
		Venue: config.Venue{Timezone: "UTC", Location: time.UTC},
		Auth: config.Auth{
			BartenderKey:  bartenderKey,
			SessionSecret: "session-secret",
			JWTSecret:     "jwt-secret",
			TokenTTL:      time.Hour,
		},
		Orders: config.Orders{RequirePhone: true, StoreTimeout: 5 * time.Second, StaleAfter: 10 * time.Minute},
		SMS: config.SMS{
			Provider:       "log",
			BartenderPhone: "+1 (555) 000-1111",
			Timeout:        time.Second,
			Workers:        2,
			QueueSize:      16,
			RatePerSecond:  100,
			DedupTTL:       time.Hour,
		},
		CORSAllowedOrigin:  "*",
		ChangePollInterval: 20 * time.Millisecond,
	}
}

// A guest order travels through the whole stack: HTTP create, notification queue, change
// feed, and the dashboard refetch.
func TestGuestOrderReachesDashboard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	a, err := newApp(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	prev, err := a.orders.ListOrders(ctx, services.OrderFilter{Range: services.RangeAll})
	require.NoError(t, err)
	var lastNumber int64
	for _, o := range prev {
		if o.OrderNumber > lastNumber {
			lastNumber = o.OrderNumber
		}
	}

	feed := a.hub.Subscribe(kds.DashboardFilter())
	defer feed.Close()

	view := dashboard.NewView(a.hub, func(ctx context.Context) ([]models.Order, error) {
		return a.orders.ListOrders(ctx, services.OrderFilter{Range: services.RangeAll, WithItems: true})
	})
	viewCtx, stopView := context.WithCancel(ctx)
	defer stopView()
	go view.Run(viewCtx)
	select {
	case <-view.Updates():
	case <-time.After(3 * time.Second):
		t.Fatal("dashboard never loaded")
	}

	body, err := json.Marshal(map[string]interface{}{
		"guest_name":   "Jane Doe",
		"phone_number": "4695551234",
		"items":        []map[string]interface{}{{"item_name": "Old Fashioned", "quantity": 2}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	order := resp.Data
	assert.Equal(t, models.StatusNew, order.Status)
	assert.Equal(t, lastNumber+1, order.OrderNumber)

	select {
	case e := <-feed.C:
		assert.Equal(t, order.ID, e.OrderID)
	case <-time.After(3 * time.Second):
		t.Fatal("no feed event for the new order")
	}

	require.Eventually(t, func() bool {
		column := view.Columns()[models.StatusNew]
		for _, o := range column {
			if o.ID == order.ID && views.DrinkSummary(o.OrderItems) == "2x Old Fashioned" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		logs, err := a.logs.List(ctx, order.ID, 10)
		return err == nil && len(logs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	logs, err := a.logs.List(ctx, order.ID, 10)
	require.NoError(t, err)
	templates := []string{logs[0].Template, logs[1].Template}
	assert.ElementsMatch(t, []string{string(notifier.TemplateBartenderNewOrder), string(notifier.TemplateGuestConfirmed)}, templates)
	for _, l := range logs {
		assert.Equal(t, models.NotificationSkipped, l.Status, "no provider configured")
	}
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	sender, err := newSender(context.Background(), config.SMS{Provider: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", sender.Name())

	sender, err = newSender(context.Background(), config.SMS{Provider: "twilio", TwilioAccountSID: "AC1", TwilioAuthToken: "t", TwilioFrom: "+15550000000", TwilioBaseURL: "http://localhost", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "twilio", sender.Name())

	_, err = newSender(context.Background(), config.SMS{Provider: "twilio", TwilioAccountSID: "AC1", TwilioAuthToken: "t", TwilioFrom: "+15550000000", TwilioBaseURL: "not a url", Timeout: time.Second})
	assert.Error(t, err)
}
