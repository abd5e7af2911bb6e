package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	utils.InfoLogger.SetOutput(io.Discard)
	utils.ErrorLogger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type stubHandler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubHandler) HandleAction(ctx context.Context, p *Principal, action string, data json.RawMessage) (*events.AckPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, action)
	if s.err != nil {
		return nil, s.err
	}
	return &events.AckPayload{Action: action, Cooldown: 60}, nil
}

// newTestServer -> ?as=staff atau ?as=session&sid=... menentukan principal tanpa token
func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p     *Principal
			rooms []string
		)
		switch r.URL.Query().Get("as") {
		case PrincipalStaff:
			p = &Principal{Kind: PrincipalStaff, RestaurantID: 1, UserID: 9, Role: "admin"}
			rooms = []string{events.RestaurantRoom(1)}
		default:
			sid := r.URL.Query().Get("sid")
			p = &Principal{Kind: PrincipalSession, RestaurantID: 1, SessionID: sid, TableID: 3}
			rooms = []string{events.SessionRoom(sid)}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, p, rooms)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env := readEnvelope(t, conn)
	require.Equal(t, events.Connected, env.Event)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(events.Envelope{Event: event, Data: raw}))
}

func TestHub_StaffReceivesEventOnceAcrossRooms(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "as=staff")

	send(t, conn, events.JoinKitchen, nil)
	ack := readEnvelope(t, conn)
	require.Equal(t, events.Ack, ack.Event)
	assert.Equal(t, 1, hub.RoomSize(events.KitchenRoom(1)))

	hub.Emit(events.StaffRooms(1), events.OrderCreated, events.OrderCreatedPayload{OrderID: 5, OrderNumber: 1})
	hub.Emit([]string{events.RestaurantRoom(1)}, events.TableUpdated, events.TableUpdatedPayload{TableID: 3})

	first := readEnvelope(t, conn)
	assert.Equal(t, events.OrderCreated, first.Event)
	var payload events.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(first.Data, &payload))
	assert.Equal(t, uint(5), payload.OrderID)

	// frame berikutnya harus event kedua, bukan duplikat order:created
	second := readEnvelope(t, conn)
	assert.Equal(t, events.TableUpdated, second.Event)

	send(t, conn, events.LeaveKitchen, nil)
	require.Equal(t, events.Ack, readEnvelope(t, conn).Event)
	assert.Equal(t, 0, hub.RoomSize(events.KitchenRoom(1)))
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	a := dial(t, srv, "as=session&sid=aaa")
	b := dial(t, srv, "as=session&sid=bbb")

	hub.Emit([]string{events.SessionRoom("aaa")}, events.OrderConfirmed, events.OrderStagePayload{OrderID: 1})
	hub.Emit([]string{events.SessionRoom("bbb")}, events.OrderReady, events.OrderStagePayload{OrderID: 2})

	assert.Equal(t, events.OrderConfirmed, readEnvelope(t, a).Event)
	assert.Equal(t, events.OrderReady, readEnvelope(t, b).Event)

	// room tanpa member bukan error
	hub.Emit([]string{events.SessionRoom("nobody")}, events.OrderReady, nil)
}

func TestHub_SessionClosedDisconnectsCustomer(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "as=session&sid=s1")
	require.Equal(t, 1, hub.RoomSize(events.SessionRoom("s1")))

	hub.Emit([]string{events.SessionRoom("s1")}, events.SessionClosed, events.SessionClosedPayload{SessionID: "s1", Reason: "payment_completed"})

	env := readEnvelope(t, conn)
	assert.Equal(t, events.SessionClosed, env.Event)
	assert.Equal(t, 0, hub.RoomSize(events.SessionRoom("s1")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
}

func TestHub_ActionPermissions(t *testing.T) {
	handler := &stubHandler{}
	hub := NewHub(handler)
	srv := newTestServer(t, hub)
	staff := dial(t, srv, "as=staff")
	customer := dial(t, srv, "as=session&sid=s1")

	send(t, customer, events.JoinKitchen, nil)
	env := readEnvelope(t, customer)
	require.Equal(t, events.Error, env.Event)
	var errPayload events.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "FORBIDDEN", errPayload.Code)

	send(t, staff, events.CallWaiter, nil)
	env = readEnvelope(t, staff)
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "FORBIDDEN", errPayload.Code)

	send(t, customer, "dance", nil)
	env = readEnvelope(t, customer)
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "UNKNOWN_ACTION", errPayload.Code)

	require.NoError(t, customer.WriteMessage(websocket.TextMessage, []byte("not json")))
	env = readEnvelope(t, customer)
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "BAD_FRAME", errPayload.Code)

	send(t, customer, events.CallWaiter, events.CallWaiterRequest{Reason: "water"})
	env = readEnvelope(t, customer)
	require.Equal(t, events.Ack, env.Event)
	var ack events.AckPayload
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.Equal(t, events.CallWaiter, ack.Action)
	assert.Equal(t, 60, ack.Cooldown)
	handler.mu.Lock()
	assert.Equal(t, []string{events.CallWaiter}, handler.calls)
	handler.mu.Unlock()
}

func TestHub_ActionErrorCarriesRetryAfter(t *testing.T) {
	handler := &stubHandler{err: &services.Error{
		Kind:       services.KindRateLimited,
		Code:       services.ErrRateLimited.Code,
		Message:    "please wait 42 seconds before trying again",
		RetryAfter: 42,
	}}
	hub := NewHub(handler)
	srv := newTestServer(t, hub)
	customer := dial(t, srv, "as=session&sid=s1")

	send(t, customer, events.RequestBill, nil)
	env := readEnvelope(t, customer)
	require.Equal(t, events.Error, env.Event)
	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, events.RequestBill, payload.Action)
	assert.Equal(t, "RATE_LIMITED", payload.Code)
	assert.Equal(t, 42, payload.RetryAfter)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil)
	c := newClient(hub, nil, &Principal{Kind: PrincipalStaff, RestaurantID: 1})
	require.True(t, hub.register(c, []string{events.RestaurantRoom(1)}))

	for i := 0; i < sendBuffer; i++ {
		hub.Emit([]string{events.RestaurantRoom(1)}, events.TableUpdated, nil)
	}
	assert.Equal(t, 1, hub.RoomSize(events.RestaurantRoom(1)))

	hub.Emit([]string{events.RestaurantRoom(1)}, events.TableUpdated, nil)
	assert.Equal(t, 0, hub.RoomSize(events.RestaurantRoom(1)))
	assert.False(t, c.enqueue([]byte("late")))
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub := NewHub(nil)
	c := newClient(hub, nil, &Principal{Kind: PrincipalStaff, RestaurantID: 1})
	require.True(t, hub.register(c, []string{events.RestaurantRoom(1)}))

	hub.Close()
	assert.Equal(t, 0, hub.RoomSize(events.RestaurantRoom(1)))
	assert.False(t, hub.register(newClient(hub, nil, &Principal{Kind: PrincipalStaff}), nil))
}
