package client

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
)

type manualClock struct {
	at time.Time
}

func (c *manualClock) Now() time.Time          { return c.at }
func (c *manualClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestSessionStore(t *testing.T, path string) (*SessionStore, *manualClock) {
	t.Helper()
	clock := &manualClock{at: time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)}
	s := NewSessionStore(path, time.Minute)
	s.now = clock.Now
	return s, clock
}

func payload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func seededOrder() TrackedOrder {
	return TrackedOrder{
		ID:          7,
		OrderNumber: 1,
		Status:      "PENDING",
		Total:       "51",
		Items: []TrackedItem{
			{ID: 70, Name: "Burger", Status: "PENDING"},
			{ID: 71, Name: "Soda", Status: "DELIVERED"},
		},
	}
}

func TestSessionStore_SetSession(t *testing.T) {
	s, _ := newTestSessionStore(t, "")
	assert.Nil(t, s.Session())

	require.NoError(t, s.SetSession(SessionInfo{ID: "s1", TableID: 1, CustomerName: "Ana", IsVerified: true}, "tok-1"))
	require.NoError(t, s.UpsertOrder(seededOrder()))

	// session yang sama: order tetap
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1", TableID: 1, CustomerName: "Ana", IsVerified: true}, "tok-2"))
	assert.Equal(t, "tok-2", s.Token())
	assert.Len(t, s.Orders(), 1)

	// session baru: state lama dibuang
	require.NoError(t, s.SetSession(SessionInfo{ID: "s2", TableID: 1}, "tok-3"))
	assert.Empty(t, s.Orders())
	assert.Equal(t, "s2", s.Session().ID)
}

func TestSessionStore_UpsertSortsAndCaps(t *testing.T) {
	s, _ := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))

	for i := 1; i <= MaxTrackedOrders+5; i++ {
		require.NoError(t, s.UpsertOrder(TrackedOrder{ID: uint(i), OrderNumber: int64(i), Status: "PENDING"}))
	}
	orders := s.Orders()
	require.Len(t, orders, MaxTrackedOrders)
	assert.Equal(t, int64(MaxTrackedOrders+5), orders[0].OrderNumber)
	assert.Equal(t, int64(6), orders[len(orders)-1].OrderNumber)

	// upsert id yang sudah ada menimpa, tidak menambah
	require.NoError(t, s.UpsertOrder(TrackedOrder{ID: 10, OrderNumber: 10, Status: "READY"}))
	orders = s.Orders()
	assert.Len(t, orders, MaxTrackedOrders)
	for _, o := range orders {
		if o.ID == 10 {
			assert.Equal(t, "READY", o.Status)
		}
	}
}

func TestSessionStore_ApplyOrderEvents(t *testing.T) {
	s, clock := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))
	require.NoError(t, s.UpsertOrder(seededOrder()))

	clock.Advance(time.Minute)
	ok, err := s.ApplyEvent(events.OrderConfirmed, payload(t, events.OrderStagePayload{OrderID: 7, OrderNumber: 1}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CONFIRMED", s.Orders()[0].Status)
	assert.Equal(t, clock.Now(), s.Orders()[0].UpdatedAt)

	ok, err = s.ApplyEvent(events.OrderUpdated, payload(t, events.OrderUpdatedPayload{OrderID: 7, Status: "PREPARING"}))
	require.NoError(t, err)
	require.True(t, ok)
	// diputar ulang, hasil sama
	ok, err = s.ApplyEvent(events.OrderUpdated, payload(t, events.OrderUpdatedPayload{OrderID: 7, Status: "PREPARING"}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PREPARING", s.Orders()[0].Status)

	ok, err = s.ApplyEvent(events.OrderItemUpdated, payload(t, events.OrderItemUpdatedPayload{OrderID: 7, ItemID: 70, Status: "READY", OrderStatus: "READY"}))
	require.NoError(t, err)
	require.True(t, ok)
	order := s.Orders()[0]
	assert.Equal(t, "READY", order.Status)
	assert.Equal(t, "READY", order.Items[0].Status)

	ok, err = s.ApplyEvent(events.OrderUpdated, payload(t, events.OrderUpdatedPayload{OrderID: 99, Status: "READY"}))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ApplyEvent(events.TableUpdated, payload(t, events.TableUpdatedPayload{TableID: 1, Status: "CLOSED"}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_ApplyCancelled(t *testing.T) {
	s, _ := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))
	require.NoError(t, s.UpsertOrder(seededOrder()))

	ok, err := s.ApplyEvent(events.OrderCancelled, payload(t, events.OrderCancelledPayload{OrderID: 7, OrderNumber: 1, Reason: "out of stock"}))
	require.NoError(t, err)
	require.True(t, ok)

	order := s.Orders()[0]
	assert.Equal(t, "CANCELLED", order.Status)
	assert.Equal(t, "out of stock", order.Reason)
	assert.Equal(t, "CANCELLED", order.Items[0].Status)
	assert.Equal(t, "DELIVERED", order.Items[1].Status)
}

func TestSessionStore_SessionClosed(t *testing.T) {
	s, _ := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))
	_, err := s.TryInteraction(events.CallWaiter)
	require.NoError(t, err)

	// session lain diabaikan
	ok, err := s.ApplyEvent(events.SessionClosed, payload(t, events.SessionClosedPayload{SessionID: "other", Reason: "TABLE_CLOSED"}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "tok", s.Token())

	ok, err = s.ApplyEvent(events.SessionClosed, payload(t, events.SessionClosedPayload{SessionID: "s1", Reason: "TABLE_CLOSED"}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, s.Token())
	assert.Equal(t, "TABLE_CLOSED", s.ClosedReason())

	res, err := s.TryInteraction(events.CallWaiter)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSessionStore_Interactions(t *testing.T) {
	s, clock := newTestSessionStore(t, "")

	res, err := s.TryInteraction(events.CallWaiter)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "no session, nothing to call")

	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))
	res, err = s.TryInteraction(events.CallWaiter)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 60, res.Remaining)

	clock.Advance(15 * time.Second)
	res, _ = s.TryInteraction(events.CallWaiter)
	assert.False(t, res.Allowed)
	assert.Equal(t, 45, res.Remaining)

	res, _ = s.TryInteraction(events.RequestBill)
	assert.True(t, res.Allowed)

	clock.Advance(45 * time.Second)
	res, _ = s.TryInteraction(events.CallWaiter)
	assert.True(t, res.Allowed)
}

func TestSessionStore_SyncCooldown(t *testing.T) {
	s, clock := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))

	require.NoError(t, s.SyncCooldown(events.CallWaiter, 42))
	res, _ := s.TryInteraction(events.CallWaiter)
	assert.False(t, res.Allowed)
	assert.Equal(t, 42, res.Remaining)

	clock.Advance(42 * time.Second)
	res, _ = s.TryInteraction(events.CallWaiter)
	assert.True(t, res.Allowed)

	require.NoError(t, s.SyncCooldown(events.RequestBill, 0))
	res, _ = s.TryInteraction(events.RequestBill)
	assert.True(t, res.Allowed)
}

func TestSessionStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, clock := newTestSessionStore(t, path)
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1", CustomerName: "Ana", IsVerified: true}, "tok"))
	require.NoError(t, s.UpsertOrder(seededOrder()))
	_, err := s.TryInteraction(events.CallWaiter)
	require.NoError(t, err)

	restored := NewSessionStore(path, time.Minute)
	clock.Advance(20 * time.Second)
	restored.now = clock.Now
	require.NoError(t, restored.Load())

	assert.Equal(t, "Ana", restored.Session().CustomerName)
	assert.Equal(t, "tok", restored.Token())
	require.Len(t, restored.Orders(), 1)
	assert.Equal(t, "51", restored.Orders()[0].Total)

	res, _ := restored.TryInteraction(events.CallWaiter)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40, res.Remaining)
}

func TestSessionStore_ReplaceOrders(t *testing.T) {
	s, _ := newTestSessionStore(t, "")
	require.NoError(t, s.SetSession(SessionInfo{ID: "s1"}, "tok"))
	require.NoError(t, s.UpsertOrder(seededOrder()))

	require.NoError(t, s.ReplaceOrders([]TrackedOrder{
		{ID: 8, OrderNumber: 2, Status: "PENDING"},
		{ID: 9, OrderNumber: 3, Status: "READY"},
	}))
	orders := s.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, uint(9), orders[0].ID)
	assert.Equal(t, uint(8), orders[1].ID)
}
