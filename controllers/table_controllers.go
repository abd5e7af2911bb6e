package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AllanGomesCorrea/QRmenu-sub001/middlewares"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

type TableController struct {
	Tables   *services.TableService
	Sessions *services.SessionService
}

func NewTableController(tables *services.TableService, sessions *services.SessionService) *TableController {
	return &TableController{Tables: tables, Sessions: sessions}
}

// GetAllTables -> GET /api/admin/tables
func (tc *TableController) GetAllTables(c *gin.Context) {
	tables, err := tc.Tables.ListTables(c.Request.Context(), middlewares.GetRestaurantID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

// UpdateTableStatus -> PATCH /api/admin/tables/:table_id/status {status: ACTIVE|INACTIVE|CLOSED}
func (tc *TableController) UpdateTableStatus(c *gin.Context) {
	id, ok := parseUintParam(c, "table_id")
	if !ok {
		return
	}

	type reqBody struct {
		Status string `json:"status" binding:"required"`
	}
	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	table, err := tc.Tables.SetStatus(c.Request.Context(), middlewares.GetRestaurantID(c), id, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table status updated", table)
}

// CloseTable -> POST /api/admin/tables/:table_id/close {reason?}
func (tc *TableController) CloseTable(c *gin.Context) {
	id, ok := parseUintParam(c, "table_id")
	if !ok {
		return
	}

	type reqBody struct {
		Reason string `json:"reason"`
	}
	var req reqBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	table, err := tc.Tables.CloseTable(c.Request.Context(), middlewares.GetRestaurantID(c), id, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table closed", table)
}

// GetTableSessions -> GET /api/admin/tables/:table_id/sessions
func (tc *TableController) GetTableSessions(c *gin.Context) {
	id, ok := parseUintParam(c, "table_id")
	if !ok {
		return
	}
	sessions, err := tc.Sessions.ListTableSessions(c.Request.Context(), middlewares.GetRestaurantID(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active sessions", sessions)
}

// CloseSession -> POST /api/admin/sessions/:session_id/close {reason}
func (tc *TableController) CloseSession(c *gin.Context) {
	type reqBody struct {
		Reason string `json:"reason" binding:"required"`
	}
	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	session, err := tc.Sessions.CloseSession(c.Request.Context(), middlewares.GetRestaurantID(c), c.Param("session_id"), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session closed", session)
}

// CallWaiter -> POST /api/session/call-waiter {reason?}
func (tc *TableController) CallWaiter(c *gin.Context) {
	type reqBody struct {
		Reason string `json:"reason"`
	}
	var req reqBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	result, err := tc.Tables.CallWaiter(c.Request.Context(), middlewares.GetSession(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Waiter called", result)
}

// RequestBill -> POST /api/session/request-bill
func (tc *TableController) RequestBill(c *gin.Context) {
	result, err := tc.Tables.RequestBill(c.Request.Context(), middlewares.GetSession(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bill requested", result)
}
