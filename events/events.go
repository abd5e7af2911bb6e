// Package events holds the realtime event catalog shared by the server and the Go client:
// event and action names, room names and payload shapes.
package events

import (
	"encoding/json"
	"fmt"
)

// Server -> client events.
const (
	OrderCreated      = "order:created"
	OrderUpdated      = "order:updated"
	OrderCancelled    = "order:cancelled"
	OrderItemUpdated  = "order:item:updated"
	OrderConfirmed    = "order:confirmed"
	OrderPreparing    = "order:preparing"
	OrderReady        = "order:ready"
	TableWaiterCalled = "table:waiter-called"
	TableBillRequest  = "table:bill-requested"
	TableUpdated      = "table:updated"
	SessionClosed     = "session:closed"

	Connected = "connected"
	Ack       = "ack"
	Error     = "error"
)

// Client -> server actions.
const (
	JoinKitchen  = "joinKitchen"
	LeaveKitchen = "leaveKitchen"
	CallWaiter   = "table:call-waiter"
	RequestBill  = "table:request-bill"
)

// Envelope is the JSON frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RestaurantRoom is the admin dashboard room of one restaurant.
func RestaurantRoom(restaurantID uint) string {
	return fmt.Sprintf("restaurant:%d", restaurantID)
}

// KitchenRoom is joined explicitly by kitchen displays.
func KitchenRoom(restaurantID uint) string {
	return fmt.Sprintf("kitchen:%d", restaurantID)
}

// SessionRoom is the customer device room of one table session.
func SessionRoom(sessionID string) string {
	return "session:" + sessionID
}

// StaffRooms are the rooms every restaurant-wide event goes to.
func StaffRooms(restaurantID uint) []string {
	return []string{RestaurantRoom(restaurantID), KitchenRoom(restaurantID)}
}

type OrderCreatedPayload struct {
	OrderID     uint        `json:"orderId"`
	OrderNumber int64       `json:"orderNumber"`
	TableID     uint        `json:"tableId"`
	TableNumber int         `json:"tableNumber"`
	ItemCount   int         `json:"itemCount"`
	Total       string      `json:"total"`
	Order       interface{} `json:"order,omitempty"`
}

type OrderUpdatedPayload struct {
	OrderID     uint        `json:"orderId"`
	OrderNumber int64       `json:"orderNumber"`
	Status      string      `json:"status"`
	Previous    string      `json:"previousStatus,omitempty"`
	TableID     uint        `json:"tableId"`
	Order       interface{} `json:"order,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID     uint   `json:"orderId"`
	OrderNumber int64  `json:"orderNumber"`
	Reason      string `json:"reason"`
	TableID     uint   `json:"tableId"`
}

type OrderItemUpdatedPayload struct {
	OrderID     uint   `json:"orderId"`
	ItemID      uint   `json:"itemId"`
	Status      string `json:"status"`
	OrderStatus string `json:"orderStatus"`
}

// OrderStagePayload is sent to the customer for order:confirmed/preparing/ready.
type OrderStagePayload struct {
	OrderID     uint  `json:"orderId"`
	OrderNumber int64 `json:"orderNumber"`
}

type WaiterCalledPayload struct {
	TableID     uint   `json:"tableId"`
	TableNumber int    `json:"tableNumber"`
	SessionID   string `json:"sessionId"`
	Customer    string `json:"customerName"`
	Reason      string `json:"reason,omitempty"`
}

type BillRequestedPayload struct {
	TableID     uint   `json:"tableId"`
	TableNumber int    `json:"tableNumber"`
	SessionID   string `json:"sessionId"`
	Customer    string `json:"customerName"`
}

type TableUpdatedPayload struct {
	TableID     uint   `json:"tableId"`
	TableNumber int    `json:"tableNumber"`
	Status      string `json:"status"`
}

type SessionClosedPayload struct {
	SessionID string `json:"sessionId"`
	TableID   uint   `json:"tableId"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// ConnectedPayload is the first frame after a successful handshake.
type ConnectedPayload struct {
	Principal string   `json:"principal"`
	Rooms     []string `json:"rooms"`
}

type AckPayload struct {
	Action     string `json:"action"`
	Cooldown   int    `json:"cooldown,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type ErrorPayload struct {
	Action     string `json:"action,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type CallWaiterRequest struct {
	Reason string `json:"reason"`
}
