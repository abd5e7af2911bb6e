package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/AllanGomesCorrea/QRmenu-sub001/middlewares"
	"github.com/AllanGomesCorrea/QRmenu-sub001/services"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// CreateOrder -> POST /api/session/orders (token session)
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var body services.CreateOrderInput
	if !bindJSON(c, &body) {
		return
	}

	order, err := oc.Orders.CreateOrder(c.Request.Context(), middlewares.GetSessionToken(c), body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// GetSessionOrders -> GET /api/session/orders
func (oc *OrderController) GetSessionOrders(c *gin.Context) {
	session := middlewares.GetSession(c)
	orders, err := oc.Orders.ListSessionOrders(c.Request.Context(), session.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// GetSessionOrder -> GET /api/session/orders/:order_id
func (oc *OrderController) GetSessionOrder(c *gin.Context) {
	id, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}
	order, err := oc.Orders.GetSessionOrder(c.Request.Context(), middlewares.GetSession(c).ID, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// GetAllOrders -> GET /api/admin/orders?status=PENDING,CONFIRMED
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	var statuses []string
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	orders, err := oc.Orders.ListOrders(c.Request.Context(), middlewares.GetRestaurantID(c), statuses)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// GetOrderByID -> GET /api/admin/orders/:order_id
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}
	order, err := oc.Orders.GetOrder(c.Request.Context(), middlewares.GetRestaurantID(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// UpdateOrderStatus -> PATCH /api/admin/orders/:order_id/status
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	id, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	type reqBody struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	order, err := oc.Orders.UpdateOrderStatus(c.Request.Context(), middlewares.GetRestaurantID(c), id, req.Status, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

// UpdateItemStatus -> PATCH /api/admin/orders/:order_id/items/:item_id/status
func (oc *OrderController) UpdateItemStatus(c *gin.Context) {
	orderID, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}
	itemID, ok := parseUintParam(c, "item_id")
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

	order, item, err := oc.Orders.UpdateItemStatus(c.Request.Context(), middlewares.GetRestaurantID(c), orderID, itemID, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order item status updated", gin.H{
		"order_id":     order.ID,
		"order_status": order.Status,
		"item":         item,
	})
}

// CancelOrder -> POST /api/admin/orders/:order_id/cancel
func (oc *OrderController) CancelOrder(c *gin.Context) {
	id, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	type reqBody struct {
		Reason string `json:"reason" binding:"required"`
	}
	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	order, err := oc.Orders.CancelOrder(c.Request.Context(), middlewares.GetRestaurantID(c), id, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

// SetDiscount -> PATCH /api/admin/orders/:order_id/discount
func (oc *OrderController) SetDiscount(c *gin.Context) {
	id, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	type reqBody struct {
		Discount decimal.Decimal `json:"discount"`
	}
	var req reqBody
	if !bindJSON(c, &req) {
		return
	}

	order, err := oc.Orders.SetDiscount(c.Request.Context(), middlewares.GetRestaurantID(c), id, req.Discount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Discount updated", order)
}
