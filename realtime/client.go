package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	actionTimeout  = 10 * time.Second
)

// Client -> satu koneksi websocket. Satu goroutine baca, satu goroutine tulis.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal *Principal
	send      chan []byte
	rooms     map[string]struct{} // dijaga hub.mu

	sendMu sync.Mutex
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, p *Principal) *Client {
	return &Client{
		hub:       h,
		conn:      conn,
		principal: p,
		send:      make(chan []byte, sendBuffer),
		rooms:     make(map[string]struct{}),
	}
}

// enqueue -> non-blocking, false jika buffer penuh atau sudah ditutup
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendEvent(event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		utils.ErrorLogger.Errorf("Error marshaling reply %s: %v", event, err)
		return
	}
	if !c.enqueue(frame) {
		c.hub.unregister(c)
	}
}

func (c *Client) sendError(action string, err error) {
	payload := events.ErrorPayload{Action: action, Code: "INTERNAL_ERROR", Message: "internal server error"}
	if se := services.AsError(err); se != nil {
		payload.Code = se.Code
		payload.Message = se.Message
		payload.RetryAfter = se.RetryAfter
	} else {
		utils.ErrorLogger.Errorf("Realtime action %s failed: %v", action, err)
	}
	c.sendEvent(events.Error, payload)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.ErrorLogger.Errorf("Realtime read error: %v", err)
			}
			return
		}

		var msg events.Envelope
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.sendEvent(events.Error, events.ErrorPayload{Code: "BAD_FRAME", Message: "frame must be {event, data}"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg events.Envelope) {
	p := c.principal
	switch msg.Event {
	case events.JoinKitchen, events.LeaveKitchen:
		if p.Kind != PrincipalStaff {
			c.sendEvent(events.Error, events.ErrorPayload{Action: msg.Event, Code: "FORBIDDEN", Message: "staff only"})
			return
		}
		room := events.KitchenRoom(p.RestaurantID)
		if msg.Event == events.JoinKitchen {
			c.hub.Join(c, room)
		} else {
			c.hub.Leave(c, room)
		}
		c.sendEvent(events.Ack, events.AckPayload{Action: msg.Event})

	case events.CallWaiter, events.RequestBill:
		if p.Kind != PrincipalSession {
			c.sendEvent(events.Error, events.ErrorPayload{Action: msg.Event, Code: "FORBIDDEN", Message: "customer only"})
			return
		}
		handler := c.hub.actionHandler()
		if handler == nil {
			c.sendEvent(events.Error, events.ErrorPayload{Action: msg.Event, Code: "UNAVAILABLE", Message: "action not available"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		ack, err := handler.HandleAction(ctx, p, msg.Event, msg.Data)
		if err != nil {
			c.sendError(msg.Event, err)
			return
		}
		c.sendEvent(events.Ack, ack)

	default:
		c.sendEvent(events.Error, events.ErrorPayload{Action: msg.Event, Code: "UNKNOWN_ACTION", Message: "unknown action"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
