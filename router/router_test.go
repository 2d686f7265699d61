package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/database"
	"github.com/yeremiapane/bar-order-app/kds"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/router"
	"github.com/yeremiapane/bar-order-app/services"
	"github.com/yeremiapane/bar-order-app/utils"
	"github.com/yeremiapane/bar-order-app/views"
)

const (
	testKey      = "bar-secret"
	testPassword = "letmein"
	jwtSecret    = "jwt-secret"
)

type noopNotifier struct{}

func (noopNotifier) OrderCreated(*models.Order) {}
func (noopNotifier) StatusChanged(*models.Order, models.OrderStatus, models.OrderStatus) {}

type testEnv struct {
	engine *gin.Engine
	hub    *kds.Hub
	orders *services.OrderService
	logs   repository.NotificationLogRepository
	tokens *utils.TokenIssuer
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithAuth(t, config.Auth{
		BartenderKey:      testKey,
		DashboardPassword: testPassword,
		SessionSecret:     "session-secret",
		JWTSecret:         jwtSecret,
		TokenTTL:          time.Hour,
	})
}

func newTestEnvWithAuth(t *testing.T, auth config.Auth) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "bar.db")})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedMenu(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		AppEnv:               "test",
		CORSAllowedOrigin:    "*",
		Auth:                 auth,
		Orders:               config.Orders{RequirePhone: true, StoreTimeout: 5 * time.Second, StaleAfter: 10 * time.Minute},
		ExportFilenamePrefix: "bar_orders",
	}

	hub := kds.NewHub()
	t.Cleanup(hub.Close)
	authorizer := services.NewKeyAuthorizer(auth.BartenderKey)
	orders := services.NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewMenuRepository(db),
		noopNotifier{}, authorizer, cfg.Orders, time.UTC,
	)
	logs := repository.NewNotificationLogRepository(db)
	tokens := utils.NewTokenIssuer(auth.JWTSecret, time.Hour)

	engine, err := router.SetupRouter(router.Dependencies{
		Config:           cfg,
		Orders:           orders,
		Feed:             hub,
		NotificationLogs: logs,
		Authorizer:       authorizer,
		Tokens:           tokens,
	})
	require.NoError(t, err)

	return &testEnv{engine: engine, hub: hub, orders: orders, logs: logs, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func withKey(req *http.Request) { req.Header.Set("X-Bartender-Key", testKey) }

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func orderBody(guest string, items ...map[string]interface{}) map[string]interface{} {
	if len(items) == 0 {
		items = []map[string]interface{}{{"item_name": "Old Fashioned", "quantity": 2}}
	}
	return map[string]interface{}{
		"guest_name":   guest,
		"phone_number": "(555) 123-4567",
		"items":        items,
	}
}

func (e *testEnv) placeOrder(t *testing.T, guest string) models.Order {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/orders", orderBody(guest))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	decode(t, w, &order)
	return order
}

func TestPing(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCreateAndFetchOrder(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/orders", orderBody("  Jane Doe "))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Order
	env := decode(t, w, &created)
	assert.True(t, env.Status)
	assert.Equal(t, "Jane Doe", created.GuestName)
	assert.Equal(t, models.StatusNew, created.Status)
	assert.Equal(t, int64(1), created.OrderNumber)
	assert.Nil(t, created.PhoneNumber, "phone numbers are not echoed to guests")

	w = e.do(t, http.MethodGet, "/api/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.Order
	decode(t, w, &fetched)
	require.Len(t, fetched.OrderItems, 1)
	assert.Equal(t, "Old Fashioned", fetched.OrderItems[0].ItemName)
	assert.Equal(t, 2, fetched.OrderItems[0].Quantity)

	second := e.placeOrder(t, "John Smith")
	assert.Equal(t, created.OrderNumber+1, second.OrderNumber)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)

	noPhone := orderBody("Jane Doe")
	delete(noPhone, "phone_number")
	w := e.do(t, http.MethodPost, "/api/orders", noPhone)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	assert.False(t, env.Status)
	assert.Contains(t, env.Message, "phone_number")

	w = e.do(t, http.MethodPost, "/api/orders", map[string]interface{}{"guest_name": "Jane Doe", "phone_number": "5551234567", "items": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/orders", orderBody("Jane Doe", map[string]interface{}{"item_name": "Negroni", "quantity": 0}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/orders", `{"guest_name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderFoldsDrinkOptionsIntoNotes(t *testing.T) {
	e := newTestEnv(t)
	selections := map[string]string{"Alcohol": "Gin", "Level of Dirt": "Extra"}

	w := e.do(t, http.MethodPost, "/api/orders", orderBody("Jane Doe", map[string]interface{}{
		"item_name": "Martini", "quantity": 1, "notes": "two olives", "options": selections,
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order models.Order
	decode(t, w, &order)
	require.Len(t, order.OrderItems, 1)
	want := views.SerializeDrinkOptions(views.DrinkOptions("Martini"), selections, "two olives")
	require.NotNil(t, order.OrderItems[0].Notes)
	assert.Equal(t, want, *order.OrderItems[0].Notes)
}

func TestGetUnknownOrder(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/orders/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, services.ErrOrderNotFound.Error(), decode(t, w, nil).Message)
}

func TestListOrdersNeedsBartender(t *testing.T) {
	e := newTestEnv(t)
	e.placeOrder(t, "Jane Doe")

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/orders", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/orders", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	}).Code)

	token, err := e.tokens.Generate("bartender")
	require.NoError(t, err)

	for name, auth := range map[string]func(*http.Request){
		"header": withKey,
		"query":  func(r *http.Request) { r.URL.RawQuery = "key=" + testKey },
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
	} {
		t.Run(name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/api/orders", nil, auth)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var board struct {
				Range       string                    `json:"range"`
				Orders      []models.Order            `json:"orders"`
				Columns     map[string][]models.Order `json:"columns"`
				TotalDrinks int                       `json:"total_drinks"`
			}
			decode(t, w, &board)
			assert.Equal(t, "week", board.Range)
			require.Len(t, board.Orders, 1)
			assert.NotNil(t, board.Orders[0].PhoneNumber, "bartenders see the phone number")
			assert.Len(t, board.Columns["new"], 1)
			assert.Equal(t, 2, board.TotalDrinks)
		})
	}
}

func TestTokensIgnoredWithoutDashboardPassword(t *testing.T) {
	e := newTestEnvWithAuth(t, config.Auth{
		BartenderKey:  testKey,
		SessionSecret: "session-secret",
		JWTSecret:     jwtSecret,
		TokenTTL:      time.Hour,
	})
	order := e.placeOrder(t, "Jane Doe")

	// correctly signed, yet no login exists that could have issued it
	token, err := e.tokens.Generate("bartender")
	require.NoError(t, err)
	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	w := e.do(t, http.MethodPatch, "/api/orders/"+order.ID, map[string]string{"status": "cancelled"}, bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/orders", nil, bearer).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/exports/orders?range=all", nil, bearer).Code)

	fetched, err := e.orders.FetchOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, fetched.Status)

	w = e.do(t, http.MethodPost, "/api/bartender/login", map[string]string{"password": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// the shared key still works
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/orders", nil, withKey).Code)
}

func TestListOrdersFilters(t *testing.T) {
	e := newTestEnv(t)
	jane := e.placeOrder(t, "Jane Doe")
	e.placeOrder(t, "John Smith")

	_, err := e.orders.UpdateOrderStatus(context.Background(), jane.ID, "in_progress", services.Credential{Key: testKey})
	require.NoError(t, err)

	var board struct {
		Orders []models.Order `json:"orders"`
	}
	w := e.do(t, http.MethodGet, "/api/orders?status=in_progress", nil, withKey)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &board)
	require.Len(t, board.Orders, 1)
	assert.Equal(t, jane.ID, board.Orders[0].ID)

	w = e.do(t, http.MethodGet, "/api/orders?q=smith&range=all", nil, withKey)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &board)
	require.Len(t, board.Orders, 1)
	assert.Equal(t, "John Smith", board.Orders[0].GuestName)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/orders?status=shaken", nil, withKey).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/orders?range=decade", nil, withKey).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/orders?from=yesterday", nil, withKey).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/orders?limit=0", nil, withKey).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	e := newTestEnv(t)
	order := e.placeOrder(t, "Jane Doe")
	path := "/api/orders/" + order.ID

	w := e.do(t, http.MethodPatch, path, map[string]string{"status": "in_progress"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPatch, path, map[string]string{"status": "in_progress", "bartender_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPatch, path, map[string]string{"status": "in_progress", "bartender_key": testKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Order
	decode(t, w, &updated)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	w = e.do(t, http.MethodPatch, path, map[string]string{"status": "new"}, withKey)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPatch, path, map[string]string{"status": "shaken"}, withKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, "/api/orders/missing", map[string]string{"status": "completed"}, withKey)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPatch, path, map[string]string{}, withKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusChangesCheckCredentialsBeforeBody(t *testing.T) {
	e := newTestEnv(t)
	order := e.placeOrder(t, "Jane Doe")
	path := "/api/orders/" + order.ID

	for name, body := range map[string]interface{}{
		"malformed json": `{"status":`,
		"missing status": map[string]string{},
		"wrong type":     `{"status": 7}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := e.do(t, http.MethodPatch, path, body)
			assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
			w = e.do(t, http.MethodPost, "/api/orders/bulk-status", body)
			assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

			w = e.do(t, http.MethodPatch, path, body, withKey)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			w = e.do(t, http.MethodPost, "/api/orders/bulk-status", body, withKey)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestBulkUpdateStatus(t *testing.T) {
	e := newTestEnv(t)
	first := e.placeOrder(t, "Jane Doe")
	second := e.placeOrder(t, "John Smith")

	body := map[string]interface{}{"order_ids": []string{first.ID, second.ID, "missing"}, "status": "cancelled"}
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/orders/bulk-status", body).Code)

	w := e.do(t, http.MethodPost, "/api/orders/bulk-status", body, withKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []services.BulkResult
	decode(t, w, &results)
	require.Len(t, results, 3)
	assert.Equal(t, models.StatusCancelled, results[0].Order.Status)
	assert.Equal(t, models.StatusCancelled, results[1].Order.Status)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, services.ErrOrderNotFound.Error(), results[2].Error)
}

func TestLoginSessionAndLogout(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/bartender/login", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/bartender/login", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	decode(t, w, &login)
	claims, err := e.tokens.Parse(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "bartender", claims.Role)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	withCookies := func(cs []*http.Cookie) func(*http.Request) {
		return func(r *http.Request) {
			for _, c := range cs {
				r.AddCookie(c)
			}
		}
	}

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/notifications", nil, withCookies(cookies)).Code)

	order := e.placeOrder(t, "Jane Doe")
	w = e.do(t, http.MethodPatch, "/api/orders/"+order.ID, map[string]string{"status": "in_progress"}, withCookies(cookies))
	assert.Equal(t, http.StatusOK, w.Code, "a session authorizes status changes")

	w = e.do(t, http.MethodPost, "/api/bartender/logout", nil, withCookies(cookies))
	require.Equal(t, http.StatusOK, w.Code)
	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/notifications", nil, withCookies(cleared)).Code)
}

func TestExportOrders(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/exports/orders", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/exports/orders", nil, withKey).Code)

	order := e.placeOrder(t, "Doe, Jane")
	ctx := context.Background()
	cred := services.Credential{Key: testKey}
	_, err := e.orders.UpdateOrderStatus(ctx, order.ID, "in_progress", cred)
	require.NoError(t, err)
	_, err = e.orders.UpdateOrderStatus(ctx, order.ID, "completed", cred)
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/exports/orders", nil, withKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	disposition := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, `attachment; filename="bar_orders_`), disposition)
	assert.True(t, strings.HasSuffix(disposition, `.csv"`), disposition)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Order Number,Order Date,Order Time,Order ID"))
	assert.Contains(t, lines[1], `"Doe, Jane"`)
	assert.Contains(t, lines[1], "Old Fashioned,2")

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/exports/orders?from=soon", nil, withKey).Code)
}

func TestGuestSearchAndHistory(t *testing.T) {
	e := newTestEnv(t)
	order := e.placeOrder(t, "Jane Doe")
	e.placeOrder(t, "jane doe")
	e.placeOrder(t, "John Smith")

	w := e.do(t, http.MethodGet, "/api/guests/search?q=ja", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Names []string `json:"names"`
	}
	decode(t, w, &found)
	assert.Len(t, found.Names, 1)

	w = e.do(t, http.MethodGet, "/api/guests/search?q=j", nil)
	decode(t, w, &found)
	assert.Empty(t, found.Names, "one letter is too short to suggest")

	cred := services.Credential{Key: testKey}
	_, err := e.orders.UpdateOrderStatus(context.Background(), order.ID, "in_progress", cred)
	require.NoError(t, err)
	_, err = e.orders.UpdateOrderStatus(context.Background(), order.ID, "completed", cred)
	require.NoError(t, err)

	w = e.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history services.History
	decode(t, w, &history)
	require.Len(t, history.RecentOrders, 1)
	assert.Equal(t, "Jane D.", history.RecentOrders[0].GuestName)
	assert.Nil(t, history.RecentOrders[0].PhoneNumber)
	require.NotEmpty(t, history.PopularDrinks)
	assert.Equal(t, "Old Fashioned", history.PopularDrinks[0].ItemName)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/history?limit=abc", nil).Code)
}

func TestMenu(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var menu []struct {
		Name    string                   `json:"name"`
		Options []views.DrinkOptionGroup `json:"options"`
	}
	decode(t, w, &menu)
	require.NotEmpty(t, menu)
	assert.Equal(t, "Old Fashioned", menu[0].Name)
	for _, item := range menu {
		if item.Name == "Martini" {
			assert.NotEmpty(t, item.Options)
		}
	}
}

func TestNotificationLog(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/notifications", nil).Code)

	require.NoError(t, e.logs.Create(context.Background(), &models.NotificationLog{
		OrderID: "o1", Template: "guest_order_confirmed", Recipient: "+15551234567", Status: models.NotificationSent,
	}))
	require.NoError(t, e.logs.Create(context.Background(), &models.NotificationLog{
		OrderID: "o2", Template: "guest_order_confirmed", Recipient: "+15557654321", Status: models.NotificationFailed,
	}))

	w := e.do(t, http.MethodGet, "/api/notifications?order_id=o2", nil, withKey)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.NotificationLog
	decode(t, w, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, models.NotificationFailed, logs[0].Status)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodOptions, "/api/orders", nil, func(r *http.Request) {
		r.Header.Set("Origin", "https://bar.example")
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://bar.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Bartender-Key")
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeedWebsockets(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.engine)
	defer srv.Close()

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/feed/ws", nil, withKey).Code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/feed/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	order := e.placeOrder(t, "Jane Doe")

	t.Run("dashboard events", func(t *testing.T) {
		conn := dialWS(t, srv, "/api/feed/ws?key="+testKey)
		require.Eventually(t, func() bool { return e.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

		e.hub.Publish(kds.Event{Type: kds.EventChange, Collection: models.TableOrders, Action: models.ActionInsert, RecordID: order.ID, OrderID: order.ID})

		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var got kds.Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, order.ID, got.OrderID)
		assert.Equal(t, models.ActionInsert, got.Action)

		conn.Close()
		require.Eventually(t, func() bool { return e.hub.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("single order", func(t *testing.T) {
		conn := dialWS(t, srv, "/api/orders/"+order.ID+"/ws")
		require.Eventually(t, func() bool { return e.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

		changed := order
		changed.Status = models.StatusInProgress
		e.hub.Publish(kds.Event{Type: kds.EventChange, Collection: models.TableOrders, Action: models.ActionUpdate, RecordID: order.ID, OrderID: order.ID, Order: &changed})

		var frame struct {
			Event   string       `json:"event"`
			Order   models.Order `json:"order"`
			Deleted bool         `json:"deleted"`
		}
		// the initial state and the resync arrive first
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for frame.Order.Status != models.StatusInProgress {
			require.NoError(t, conn.ReadJSON(&frame))
		}
		assert.Equal(t, "order", frame.Event)
		assert.Equal(t, models.StatusInProgress, frame.Order.Status)
		assert.Equal(t, "Jane Doe", frame.Order.GuestName)
	})

	t.Run("unknown order", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/missing/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
