package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AllanGomesCorrea/QRmenu-sub001/client"
	"github.com/AllanGomesCorrea/QRmenu-sub001/config"
	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/router"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()
	utils.InfoLogger.SetOutput(io.Discard)
	utils.ErrorLogger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// inbox -> dispatcher kode verifikasi untuk test, menyimpan kode terakhir per nomor
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *inbox) SendCode(ctx context.Context, phone, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[phone] = code
	return nil
}

func (b *inbox) last(phone string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[phone]
}

// setupTestDB -> sqlite in-memory + migrasi + seed restaurant, meja T-12 dan burger
func setupTestDB(t *testing.T) (*gorm.DB, models.Restaurant, models.MenuItem) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.AutoMigrate(db))

	restaurant := models.Restaurant{Name: "Bistro", Slug: "bistro", IsActive: true}
	require.NoError(t, db.Create(&restaurant).Error)
	table := models.Table{RestaurantID: restaurant.ID, Number: 12, QRCode: "T-12", Capacity: 4, Status: models.TableActive}
	require.NoError(t, db.Create(&table).Error)
	burger := models.MenuItem{RestaurantID: restaurant.ID, Name: "Burger", Price: decimal.RequireFromString("25.50"), IsAvailable: true}
	require.NoError(t, db.Create(&burger).Error)
	return db, restaurant, burger
}

func wsURL(base string) string {
	return "ws" + strings.TrimPrefix(base, "http") + "/ws"
}

func staffPatch(t *testing.T, base, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPatch, base+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data map[string]interface{} `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env.Data
}

// TestDinerOrderFlow menguji flow utama dari sisi device customer dan dashboard staff:
// 1. Scan QR meja T-12, daftar sebagai Ana, verifikasi kode
// 2. Staff terhubung ke hub, customer order 2 burger => order #1 PENDING total 51
// 3. Staff konfirmasi => customer menerima order:updated + order:confirmed
// 4. Kembali ke PENDING ditolak dengan INVALID_TRANSITION
func TestDinerOrderFlow(t *testing.T) {
	db, restaurant, burger := setupTestDB(t)

	cfg := config.FromEnv()
	cfg.HTTP.RateLimitPerSecond = 1000
	cfg.Session.Timezone = "UTC"
	codes := &inbox{codes: make(map[string]string)}
	srv := router.NewServer(db, cfg, router.Deps{Dispatcher: codes})
	defer srv.Hub.Close()

	ts := httptest.NewServer(srv.Engine)
	defer ts.Close()
	ctx := context.Background()

	// device customer
	fingerprint, err := client.ResolveFingerprint(client.DeviceSignals{
		UserAgent: "Mozilla/5.0 (iPhone)",
		Platform:  "iOS",
		Language:  "pt-BR",
		Timezone:  "America/Sao_Paulo",
	}, t.TempDir())
	require.NoError(t, err)

	api := client.NewAPI(ts.URL, restaurant.Slug)
	var status struct {
		Table   struct{ Number int } `json:"table"`
		CanJoin bool                 `json:"can_join"`
	}
	require.NoError(t, api.TableStatus(ctx, "T-12", &status))
	assert.Equal(t, 12, status.Table.Number)
	assert.True(t, status.CanJoin)

	has, _, err := api.CheckSession(ctx, "T-12", fingerprint)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = api.CreateSession(ctx, client.RegisterRequest{
		QRCode:            "T-12",
		CustomerName:      "Ana",
		CustomerPhone:     "11999999999",
		DeviceFingerprint: fingerprint,
	})
	require.NoError(t, err)
	require.NoError(t, api.RequestCode(ctx, "T-12", "11999999999"))

	_, _, err = api.VerifyCode(ctx, "T-12", "11999999999", "000000", fingerprint)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CODE_MISMATCH", apiErr.Code)

	session, token, err := api.VerifyCode(ctx, "T-12", "11999999999", codes.last("11999999999"), fingerprint)
	require.NoError(t, err)
	require.True(t, session.IsVerified)

	store := client.NewSessionStore(t.TempDir()+"/session.json", time.Minute)
	require.NoError(t, store.SetSession(*session, token))

	// dashboard staff
	staffToken, err := utils.GenerateToken(1, models.RoleKitchen, restaurant.ID)
	require.NoError(t, err)
	alerts := client.NewNotificationStore("")
	staffCreated := make(chan struct{}, 1)
	staff := client.NewSocket(client.SocketConfig{URL: wsURL(ts.URL), Token: staffToken})
	staff.On(events.OrderCreated, func(data json.RawMessage) {
		if ok, _ := alerts.ApplyEvent(events.OrderCreated, data); ok {
			staffCreated <- struct{}{}
		}
	})
	staffReady := make(chan struct{}, 1)
	staff.On(events.Connected, func(json.RawMessage) { staffReady <- struct{}{} })
	require.NoError(t, staff.Connect(ctx))
	defer staff.Close()

	// socket customer
	received := make(chan string, 8)
	customerReady := make(chan struct{}, 1)
	customer := client.NewSocket(client.SocketConfig{URL: wsURL(ts.URL), SessionToken: token})
	for _, event := range []string{events.OrderUpdated, events.OrderConfirmed} {
		event := event
		customer.On(event, func(data json.RawMessage) {
			if ok, _ := store.ApplyEvent(event, data); ok {
				received <- event
			}
		})
	}
	customer.On(events.Connected, func(json.RawMessage) { customerReady <- struct{}{} })
	customer.OnReconnect(func() { _ = api.Resync(ctx, store) })
	require.NoError(t, customer.Connect(ctx))
	defer customer.Close()

	waitFor(t, staffReady, "staff connected")
	waitFor(t, customerReady, "customer connected")

	order, err := api.CreateOrder(ctx, []client.OrderItemRequest{{MenuItemID: burger.ID, Quantity: 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.OrderNumber)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "51", order.Total)
	require.NoError(t, store.UpsertOrder(*order))

	waitFor(t, staffCreated, "order:created on staff socket")
	assert.Equal(t, 1, alerts.UnreadCount())
	assert.Equal(t, "New order #1", alerts.List()[0].Title)

	path := "/api/admin/orders/" + strconv.FormatUint(uint64(order.ID), 10) + "/status"
	code, _ := staffPatch(t, ts.URL, path, staffToken, map[string]string{"status": models.OrderConfirmed})
	require.Equal(t, http.StatusOK, code)

	var got []string
	for len(got) < 2 {
		select {
		case event := <-received:
			got = append(got, event)
		case <-time.After(3 * time.Second):
			t.Fatalf("customer events so far: %v", got)
		}
	}
	assert.Equal(t, []string{events.OrderUpdated, events.OrderConfirmed}, got)
	assert.Equal(t, models.OrderConfirmed, store.Orders()[0].Status)

	code, data := staffPatch(t, ts.URL, path, staffToken, map[string]string{"status": models.OrderPending})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", data["code"])
	assert.Equal(t, models.OrderConfirmed, data["current"])

	orders, err := api.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderConfirmed, orders[0].Status)

	ack, err := api.CallWaiter(ctx, "napkins")
	require.NoError(t, err)
	require.NoError(t, store.SyncCooldown(ack.Action, ack.Cooldown))
	res, err := store.TryInteraction(ack.Action)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	_, err = api.CallWaiter(ctx, "again")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 60, apiErr.RetryAfter)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
