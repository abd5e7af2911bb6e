package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AllanGomesCorrea/QRmenu-sub001/middlewares"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// CustomerController -> alur scan QR: status meja, registrasi, kode verifikasi
type CustomerController struct {
	Sessions     *services.SessionService
	Verification *services.VerificationService
}

func NewCustomerController(sessions *services.SessionService, verification *services.VerificationService) *CustomerController {
	return &CustomerController{Sessions: sessions, Verification: verification}
}

// GetTableStatus -> GET /api/r/:slug/tables/:qr_code/status
func (cc *CustomerController) GetTableStatus(c *gin.Context) {
	status, err := cc.Sessions.GetTableStatus(c.Request.Context(), c.Param("slug"), c.Param("qr_code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table status", status)
}

type sessionSummary struct {
	ID           string `json:"id"`
	CustomerName string `json:"customer_name"`
	IsVerified   bool   `json:"is_verified"`
}

// CheckSession -> GET /api/r/:slug/tables/:qr_code/session?fingerprint=
func (cc *CustomerController) CheckSession(c *gin.Context) {
	session, err := cc.Sessions.CheckExistingSession(c.Request.Context(), c.Param("slug"), c.Param("qr_code"), c.Query("fingerprint"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if session == nil {
		utils.RespondJSON(c, http.StatusOK, "No active session", gin.H{"has_session": false})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active session found", gin.H{
		"has_session": true,
		"session": sessionSummary{
			ID:           session.ID,
			CustomerName: session.CustomerName,
			IsVerified:   session.IsVerified,
		},
	})
}

// CreateSession -> POST /api/r/:slug/sessions
func (cc *CustomerController) CreateSession(c *gin.Context) {
	type reqBody struct {
		QRCode            string   `json:"qr_code" binding:"required"`
		CustomerName      string   `json:"customer_name" binding:"required"`
		CustomerPhone     string   `json:"customer_phone" binding:"required"`
		DeviceFingerprint string   `json:"device_fingerprint" binding:"required"`
		Latitude          *float64 `json:"latitude"`
		Longitude         *float64 `json:"longitude"`
	}

	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	session, err := cc.Sessions.CreateSession(c.Request.Context(), services.CreateSessionInput{
		Slug:              c.Param("slug"),
		QRCode:            req.QRCode,
		CustomerName:      req.CustomerName,
		CustomerPhone:     req.CustomerPhone,
		DeviceFingerprint: req.DeviceFingerprint,
		UserAgent:         c.Request.UserAgent(),
		IPAddress:         c.ClientIP(),
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Session created", gin.H{"session": session})
}

// RequestCode -> POST /api/r/:slug/sessions/request-code
func (cc *CustomerController) RequestCode(c *gin.Context) {
	type reqBody struct {
		QRCode string `json:"qr_code" binding:"required"`
		Phone  string `json:"phone" binding:"required"`
	}

	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	code, err := cc.Verification.RequestCode(c.Request.Context(), c.Param("slug"), req.QRCode, req.Phone)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusAccepted, "Verification code sent", gin.H{"expires_at": code.ExpiresAt})
}

// VerifyCode -> POST /api/r/:slug/sessions/verify
func (cc *CustomerController) VerifyCode(c *gin.Context) {
	type reqBody struct {
		QRCode            string `json:"qr_code" binding:"required"`
		Phone             string `json:"phone" binding:"required"`
		Code              string `json:"code" binding:"required"`
		DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
	}

	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	verified, err := cc.Verification.VerifyCode(c.Request.Context(), c.Param("slug"), req.QRCode, req.Phone, req.Code, req.DeviceFingerprint)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session verified", verified)
}

// GetCurrentSession -> GET /api/session
func (cc *CustomerController) GetCurrentSession(c *gin.Context) {
	session := middlewares.GetSession(c)
	utils.RespondJSON(c, http.StatusOK, "Current session", gin.H{
		"session": session,
		"table":   tableView(&session.Table),
	})
}

func tableView(t *models.Table) gin.H {
	return gin.H{
		"id":     t.ID,
		"number": t.Number,
		"name":   t.Name,
		"status": t.Status,
	}
}
