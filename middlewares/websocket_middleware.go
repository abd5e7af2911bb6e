package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/realtime"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// Key context untuk handshake websocket
const (
	CtxPrincipal = "principal"
	CtxRooms     = "rooms"
)

// WebSocketAuthMiddleware -> autentikasi sebelum upgrade. Staff: ?token=, customer: ?sessionToken=.
// Koneksi tanpa token valid ditolak 401, tidak pernah diturunkan ke room anonim.
func WebSocketAuthMiddleware(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		staffToken := strings.TrimSpace(c.Query("token"))
		sessionToken := strings.TrimSpace(c.Query("sessionToken"))

		switch {
		case sessionToken != "":
			session, err := sessions.ResolveToken(c.Request.Context(), sessionToken)
			if err != nil {
				utils.RespondError(c, http.StatusUnauthorized, services.ErrInvalidSession)
				c.Abort()
				return
			}
			c.Set(CtxPrincipal, &realtime.Principal{
				Kind:         realtime.PrincipalSession,
				RestaurantID: session.Table.RestaurantID,
				SessionID:    session.ID,
				TableID:      session.TableID,
				Token:        sessionToken,
			})
			c.Set(CtxRooms, []string{events.SessionRoom(session.ID)})

		case staffToken != "":
			claims, err := utils.ParseToken(staffToken)
			if err != nil {
				utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
				c.Abort()
				return
			}
			c.Set(CtxPrincipal, &realtime.Principal{
				Kind:         realtime.PrincipalStaff,
				RestaurantID: claims.RestaurantID,
				UserID:       claims.UserID,
				Role:         claims.Role,
				Token:        staffToken,
			})
			c.Set(CtxRooms, []string{events.RestaurantRoom(claims.RestaurantID)})

		default:
			utils.RespondError(c, http.StatusUnauthorized, errors.New("token tidak ditemukan"))
			c.Abort()
			return
		}

		c.Next()
	}
}
