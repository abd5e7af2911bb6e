package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// Key context gin
const (
	CtxUserID       = "userID"
	CtxRole         = "role"
	CtxRestaurantID = "restaurantID"
	CtxSession      = "session"
	CtxSessionToken = "sessionToken"
)

// SessionTokenHeader -> header token session customer
const SessionTokenHeader = "X-Session-Token"

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// StaffAuthMiddleware -> token staff (JWT) dari header Authorization
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil || claims == nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxRestaurantID, claims.RestaurantID)
		c.Next()
	}
}

// SessionAuthMiddleware -> token session customer dari X-Session-Token atau Bearer.
// Token yang tidak lagi berlaku selalu ditolak (fail closed).
func SessionAuthMiddleware(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(SessionTokenHeader))
		if token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			utils.RespondErrorWithData(c, http.StatusUnauthorized, errors.New("session token missing"),
				gin.H{"code": services.ErrInvalidSession.Code})
			c.Abort()
			return
		}

		session, err := sessions.ResolveToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, services.ErrInvalidSession) {
				utils.ErrorLogger.WithFields(logrus.Fields{"error": err.Error()}).Error("Failed to resolve session token")
				utils.RespondError(c, http.StatusInternalServerError, errors.New("internal server error"))
				c.Abort()
				return
			}
			utils.RespondErrorWithData(c, http.StatusUnauthorized, services.ErrInvalidSession,
				gin.H{"code": services.ErrInvalidSession.Code})
			c.Abort()
			return
		}

		c.Set(CtxSession, session)
		c.Set(CtxSessionToken, token)
		c.Set(CtxRestaurantID, session.Table.RestaurantID)
		c.Next()
	}
}

// GetSession -> session customer dari context (setelah SessionAuthMiddleware)
func GetSession(c *gin.Context) *models.TableSession {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil
	}
	session, _ := v.(*models.TableSession)
	return session
}

// GetSessionToken -> token mentah yang dipakai request ini
func GetSessionToken(c *gin.Context) string {
	return c.GetString(CtxSessionToken)
}

// GetRestaurantID -> tenant dari token staff atau session
func GetRestaurantID(c *gin.Context) uint {
	return c.GetUint(CtxRestaurantID)
}
