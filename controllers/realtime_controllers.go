package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/middlewares"
	"github.com/AllanGomesCorrea/QRmenu-sub001/realtime"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// RealtimeController -> endpoint WebSocket dan handler action customer
type RealtimeController struct {
	Hub      *realtime.Hub
	Sessions *services.SessionService
	Tables   *services.TableService
	upgrader websocket.Upgrader
}

func NewRealtimeController(hub *realtime.Hub, sessions *services.SessionService, tables *services.TableService, allowedOrigins []string) *RealtimeController {
	rc := &RealtimeController{
		Hub:      hub,
		Sessions: sessions,
		Tables:   tables,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middlewares.AllowedOrigin(allowedOrigins),
		},
	}
	hub.SetHandler(rc)
	return rc
}

// Connect -> GET /ws. Principal sudah divalidasi WebSocketAuthMiddleware.
func (rc *RealtimeController) Connect(c *gin.Context) {
	p, ok := c.MustGet(middlewares.CtxPrincipal).(*realtime.Principal)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	rooms, _ := c.MustGet(middlewares.CtxRooms).([]string)

	ws, err := rc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	rc.Hub.Serve(ws, p, rooms)
}

// HandleAction -> table:call-waiter / table:request-bill dari socket customer.
// Session divalidasi ulang setiap action supaya token yang sudah dicabut langsung ditolak.
func (rc *RealtimeController) HandleAction(ctx context.Context, p *realtime.Principal, action string, data json.RawMessage) (*events.AckPayload, error) {
	session, err := rc.Sessions.ResolveToken(ctx, p.Token)
	if err != nil {
		return nil, err
	}

	var result *services.InteractionResult
	switch action {
	case events.CallWaiter:
		var req events.CallWaiterRequest
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, services.ErrValidation
			}
		}
		result, err = rc.Tables.CallWaiter(ctx, session, req.Reason)
	case events.RequestBill:
		result, err = rc.Tables.RequestBill(ctx, session)
	default:
		return nil, services.ErrValidation
	}
	if err != nil {
		return nil, err
	}
	return &events.AckPayload{Action: action, Cooldown: result.Cooldown}, nil
}
