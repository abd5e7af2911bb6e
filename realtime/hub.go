// Package realtime adalah hub websocket: autentikasi di handshake (di controller), room per
// restaurant/kitchen/session, dan fan-out event domain ke room yang tepat.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// Jenis principal koneksi
const (
	PrincipalStaff   = "staff"
	PrincipalSession = "session"
)

// Principal -> identitas koneksi yang sudah lolos handshake
type Principal struct {
	Kind         string
	RestaurantID uint
	UserID       uint
	Role         string
	SessionID    string
	TableID      uint
	// Token disimpan supaya setiap action bisa divalidasi ulang terhadap DB
	Token string
}

// ActionHandler menangani action customer (call-waiter, request-bill)
type ActionHandler interface {
	HandleAction(ctx context.Context, p *Principal, action string, data json.RawMessage) (*events.AckPayload, error)
}

// Hub menampung semua client dan keanggotaan room
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	handler ActionHandler
	closed  bool
}

func NewHub(handler ActionHandler) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		handler: handler,
	}
}

// SetHandler -> handler dipasang setelah service dibuat (service butuh hub sebagai broadcaster)
func (h *Hub) SetHandler(handler ActionHandler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) actionHandler() ActionHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// register -> tambahkan client dan join room awal, false jika hub sudah ditutup
func (h *Hub) register(c *Client, rooms []string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	for _, room := range rooms {
		h.joinLocked(c, room)
	}
	return true
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Join -> tambah client ke room
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.joinLocked(c, room)
	}
}

// Leave -> keluarkan client dari room
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// unregister -> lepas client dari semua room dan tutup antrian kirimnya
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	c.closeSend()
}

// Rooms -> salinan room yang diikuti client
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// RoomSize -> jumlah koneksi di room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit -> implementasi services.Broadcaster. Satu koneksi menerima event paling banyak sekali
// walaupun ada di beberapa room tujuan. Room kosong bukan error.
func (h *Hub) Emit(rooms []string, event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		utils.ErrorLogger.Errorf("Error marshaling event %s: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}

	for c := range targets {
		if !c.enqueue(frame) {
			// buffer penuh -> putus, client akan reconnect lalu refetch
			utils.ErrorLogger.WithFields(logrus.Fields{
				"principal": c.principal.Kind,
				"event":     event,
			}).Error("Client send buffer full, disconnecting")
			h.removeLocked(c)
			continue
		}
		if event == events.SessionClosed && c.principal.Kind == PrincipalSession {
			// session sudah mati: kirim sisa antrian lalu tutup koneksi
			h.removeLocked(c)
		}
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"event":   event,
		"rooms":   rooms,
		"clients": len(targets),
	}).Debug("Event broadcast")
}

// Close -> tutup semua koneksi (shutdown server)
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(events.Envelope{Event: event, Data: raw})
}

// Serve menjalankan koneksi yang sudah di-upgrade sampai terputus. Blocking.
func (h *Hub) Serve(conn *websocket.Conn, p *Principal, rooms []string) {
	c := newClient(h, conn, p)
	if !h.register(c, rooms) {
		conn.Close()
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"principal":     p.Kind,
		"restaurant_id": p.RestaurantID,
		"session_id":    p.SessionID,
	}).Info("Realtime client connected")

	c.sendEvent(events.Connected, events.ConnectedPayload{Principal: p.Kind, Rooms: h.Rooms(c)})
	go c.writePump()
	c.readPump()

	utils.InfoLogger.WithFields(logrus.Fields{
		"principal":  p.Kind,
		"session_id": p.SessionID,
	}).Info("Realtime client disconnected")
}
