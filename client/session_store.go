package client

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/AllanGomesCorrea/QRmenu-sub001/cooldown"
	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
)

// MaxTrackedOrders -> batas order yang disimpan di device customer
const MaxTrackedOrders = 50

type SessionInfo struct {
	ID           string `json:"id"`
	TableID      uint   `json:"table_id"`
	CustomerName string `json:"customer_name"`
	IsVerified   bool   `json:"is_verified"`
}

type TrackedItem struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type TrackedOrder struct {
	ID          uint          `json:"id"`
	OrderNumber int64         `json:"order_number"`
	Status      string        `json:"status"`
	Total       string        `json:"total"`
	Reason      string        `json:"reason,omitempty"`
	Items       []TrackedItem `json:"items"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type sessionState struct {
	Session   *SessionInfo         `json:"session"`
	Token     string               `json:"token"`
	Orders    []TrackedOrder       `json:"orders"`
	Cooldowns map[string]time.Time `json:"cooldowns"`
	Closed    string               `json:"closed,omitempty"`
}

// SessionStore -> state device customer yang diturunkan dari response API dan event hub.
// Server tetap sumber kebenaran; setelah reconnect panggil ReplaceOrders dengan hasil refetch.
type SessionStore struct {
	mu        sync.Mutex
	state     sessionState
	path      string
	guard     *cooldown.Guard
	cooldowns map[string]time.Time
	now       func() time.Time
}

func NewSessionStore(path string, window time.Duration) *SessionStore {
	s := &SessionStore{path: path, now: time.Now, cooldowns: make(map[string]time.Time)}
	s.guard = cooldown.New(window, s.clock)
	return s
}

func (s *SessionStore) clock() time.Time {
	return s.now()
}

func (s *SessionStore) Load() error {
	var st sessionState
	ok, err := loadJSON(s.path, &st)
	if err != nil || !ok {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.cooldowns = make(map[string]time.Time)
	if st.Session != nil {
		for action, at := range st.Cooldowns {
			s.cooldowns[action] = at
			s.guard.Restore(st.Session.ID, action, at)
		}
	}
	return nil
}

func (s *SessionStore) persistLocked() error {
	s.state.Cooldowns = s.cooldowns
	return saveJSON(s.path, s.state)
}

// SetSession -> dipanggil setelah verify sukses
func (s *SessionStore) SetSession(info SessionInfo, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Session == nil || s.state.Session.ID != info.ID {
		s.state.Orders = nil
		s.cooldowns = make(map[string]time.Time)
	}
	s.state.Session = &info
	s.state.Token = token
	s.state.Closed = ""
	return s.persistLocked()
}

func (s *SessionStore) Session() *SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Session == nil {
		return nil
	}
	cp := *s.state.Session
	return &cp
}

func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

// ClosedReason -> alasan session ditutup server, kosong jika masih aktif
func (s *SessionStore) ClosedReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Closed
}

// TryInteraction -> cooldown di sisi client (hanya UX, server tetap menolak jika terlalu cepat)
func (s *SessionStore) TryInteraction(action string) (cooldown.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Session == nil {
		return cooldown.Result{}, nil
	}
	res := s.guard.TryInvoke(s.state.Session.ID, action)
	if res.Allowed {
		s.cooldowns[action] = s.now()
		return res, s.persistLocked()
	}
	return res, nil
}

// SyncCooldown -> samakan dengan sisa cooldown dari server (ack atau retry_after)
func (s *SessionStore) SyncCooldown(action string, remainingSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Session == nil || remainingSeconds <= 0 {
		return nil
	}
	at := s.now().Add(time.Duration(remainingSeconds)*time.Second - s.guard.Window())
	s.guard.Restore(s.state.Session.ID, action, at)
	s.cooldowns[action] = at
	return s.persistLocked()
}

func (s *SessionStore) Orders() []TrackedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackedOrder, len(s.state.Orders))
	for i, o := range s.state.Orders {
		out[i] = o
		out[i].Items = append([]TrackedItem(nil), o.Items...)
	}
	return out
}

// ReplaceOrders -> hasil refetch penuh menggantikan state lokal
func (s *SessionStore) ReplaceOrders(orders []TrackedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Orders = nil
	for _, o := range orders {
		s.upsertLocked(o)
	}
	return s.persistLocked()
}

// UpsertOrder -> order baru dari response POST /orders
func (s *SessionStore) UpsertOrder(o TrackedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(o)
	return s.persistLocked()
}

func (s *SessionStore) upsertLocked(o TrackedOrder) {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now()
	}
	for i := range s.state.Orders {
		if s.state.Orders[i].ID == o.ID {
			s.state.Orders[i] = o
			return
		}
	}
	s.state.Orders = append(s.state.Orders, o)
	sort.SliceStable(s.state.Orders, func(i, j int) bool {
		return s.state.Orders[i].OrderNumber > s.state.Orders[j].OrderNumber
	})
	if len(s.state.Orders) > MaxTrackedOrders {
		s.state.Orders = s.state.Orders[:MaxTrackedOrders]
	}
}

func (s *SessionStore) findLocked(orderID uint) *TrackedOrder {
	for i := range s.state.Orders {
		if s.state.Orders[i].ID == orderID {
			return &s.state.Orders[i]
		}
	}
	return nil
}

// ApplyEvent -> reducer event hub untuk device customer. Event diterapkan ulang dengan hasil sama.
func (s *SessionStore) ApplyEvent(event string, data json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case events.OrderUpdated:
		var p events.OrderUpdatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		return s.setStatusLocked(p.OrderID, p.Status, "")

	case events.OrderConfirmed, events.OrderPreparing, events.OrderReady:
		var p events.OrderStagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		return s.setStatusLocked(p.OrderID, stageStatus[event], "")

	case events.OrderCancelled:
		var p events.OrderCancelledPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		return s.setStatusLocked(p.OrderID, "CANCELLED", p.Reason)

	case events.OrderItemUpdated:
		var p events.OrderItemUpdatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		order := s.findLocked(p.OrderID)
		if order == nil {
			return false, nil
		}
		for i := range order.Items {
			if order.Items[i].ID == p.ItemID {
				order.Items[i].Status = p.Status
			}
		}
		if p.OrderStatus != "" {
			order.Status = p.OrderStatus
		}
		order.UpdatedAt = s.now()
		return true, s.persistLocked()

	case events.SessionClosed:
		var p events.SessionClosedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		if s.state.Session == nil || s.state.Session.ID != p.SessionID {
			return false, nil
		}
		s.state.Token = ""
		s.state.Closed = p.Reason
		s.guard.Forget(p.SessionID)
		s.cooldowns = make(map[string]time.Time)
		return true, s.persistLocked()
	}
	return false, nil
}

var stageStatus = map[string]string{
	events.OrderConfirmed: "CONFIRMED",
	events.OrderPreparing: "PREPARING",
	events.OrderReady:     "READY",
}

func (s *SessionStore) setStatusLocked(orderID uint, status, reason string) (bool, error) {
	order := s.findLocked(orderID)
	if order == nil {
		return false, nil
	}
	order.Status = status
	if reason != "" {
		order.Reason = reason
	}
	if status == "CANCELLED" {
		for i := range order.Items {
			if order.Items[i].Status != "DELIVERED" {
				order.Items[i].Status = "CANCELLED"
			}
		}
	}
	order.UpdatedAt = s.now()
	return true, s.persistLocked()
}
