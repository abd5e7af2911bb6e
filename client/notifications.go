package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
)

// MaxNotifications -> jumlah notifikasi yang disimpan, yang paling lama dibuang
const MaxNotifications = 50

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
	TableID   uint      `json:"tableId,omitempty"`
	OrderID   uint      `json:"orderId,omitempty"`
}

// NotificationStore -> daftar notifikasi staff (terbaru di depan) dengan counter unread.
// Counter selalu sama dengan jumlah entri unread di daftar: entri unread yang tergeser
// keluar juga mengurangi counter.
type NotificationStore struct {
	mu     sync.Mutex
	items  []Notification
	unread int
	path   string
	now    func() time.Time
}

// NewNotificationStore -> path kosong berarti tidak dipersist
func NewNotificationStore(path string) *NotificationStore {
	return &NotificationStore{path: path, now: time.Now}
}

// Load membaca state yang tersimpan
func (s *NotificationStore) Load() error {
	var items []Notification
	ok, err := loadJSON(s.path, &items)
	if err != nil || !ok {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) > MaxNotifications {
		items = items[:MaxNotifications]
	}
	s.items = items
	s.unread = 0
	for _, n := range items {
		if !n.Read {
			s.unread++
		}
	}
	return nil
}

func (s *NotificationStore) persistLocked() error {
	return saveJSON(s.path, s.items)
}

// Add -> beri id & timestamp, taruh paling depan, potong ke MaxNotifications
func (s *NotificationStore) Add(n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Timestamp = s.now()
	n.Read = false

	s.items = append([]Notification{n}, s.items...)
	s.unread++
	if len(s.items) > MaxNotifications {
		for _, evicted := range s.items[MaxNotifications:] {
			if !evicted.Read {
				s.unread--
			}
		}
		s.items = s.items[:MaxNotifications]
	}
	return n, s.persistLocked()
}

// MarkAsRead -> idempotent, counter hanya turun sekali
func (s *NotificationStore) MarkAsRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].Read {
				s.items[i].Read = true
				s.unread--
				return s.persistLocked()
			}
			return nil
		}
	}
	return nil
}

func (s *NotificationStore) MarkAllAsRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	return s.persistLocked()
}

// Remove -> counter turun hanya jika yang dihapus belum dibaca
func (s *NotificationStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			if !n.Read {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persistLocked()
		}
	}
	return nil
}

func (s *NotificationStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.unread = 0
	return s.persistLocked()
}

// List -> salinan, terbaru di depan
func (s *NotificationStore) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// ApplyEvent -> ubah event hub staff menjadi notifikasi. Event lain diabaikan (false).
func (s *NotificationStore) ApplyEvent(event string, data json.RawMessage) (bool, error) {
	n, ok, err := notificationFor(event, data)
	if err != nil || !ok {
		return false, err
	}
	_, err = s.Add(n)
	return true, err
}

func notificationFor(event string, data json.RawMessage) (Notification, bool, error) {
	switch event {
	case events.OrderCreated:
		var p events.OrderCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Notification{}, false, err
		}
		return Notification{
			Type:    event,
			Title:   fmt.Sprintf("New order #%d", p.OrderNumber),
			Message: fmt.Sprintf("Table %d ordered %d item(s)", p.TableNumber, p.ItemCount),
			TableID: p.TableID,
			OrderID: p.OrderID,
		}, true, nil

	case events.OrderCancelled:
		var p events.OrderCancelledPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Notification{}, false, err
		}
		return Notification{
			Type:    event,
			Title:   fmt.Sprintf("Order #%d cancelled", p.OrderNumber),
			Message: p.Reason,
			TableID: p.TableID,
			OrderID: p.OrderID,
		}, true, nil

	case events.TableWaiterCalled:
		var p events.WaiterCalledPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Notification{}, false, err
		}
		msg := p.Reason
		if msg == "" {
			msg = p.Customer + " needs assistance"
		}
		return Notification{
			Type:    event,
			Title:   fmt.Sprintf("Table %d is calling", p.TableNumber),
			Message: msg,
			TableID: p.TableID,
		}, true, nil

	case events.TableBillRequest:
		var p events.BillRequestedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Notification{}, false, err
		}
		return Notification{
			Type:    event,
			Title:   fmt.Sprintf("Table %d requested the bill", p.TableNumber),
			Message: p.Customer,
			TableID: p.TableID,
		}, true, nil
	}
	return Notification{}, false, nil
}
