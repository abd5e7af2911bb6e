package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

const (
	maxItemQuantity = 99
	maxNotesLength  = 500
)

// orderTransitions -> transisi status order yang sah. PAID dan CANCELLED terminal;
// DELIVERED hanya boleh lanjut ke PAID.
var orderTransitions = map[string][]string{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderPreparing, models.OrderCancelled},
	models.OrderPreparing: {models.OrderReady, models.OrderCancelled},
	models.OrderReady:     {models.OrderDelivered, models.OrderPaid},
	models.OrderDelivered: {models.OrderPaid},
}

var itemTransitions = map[string][]string{
	models.ItemPending:   {models.ItemPreparing, models.ItemCancelled},
	models.ItemPreparing: {models.ItemReady, models.ItemCancelled},
	models.ItemReady:     {models.ItemDelivered, models.ItemCancelled},
}

// stageEvents -> event tambahan yang hanya dikirim ke device customer
var stageEvents = map[string]string{
	models.OrderConfirmed: events.OrderConfirmed,
	models.OrderPreparing: events.OrderPreparing,
	models.OrderReady:     events.OrderReady,
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isOrderStatus(status string) bool {
	switch status {
	case models.OrderPending, models.OrderConfirmed, models.OrderPreparing, models.OrderReady,
		models.OrderDelivered, models.OrderPaid, models.OrderCancelled:
		return true
	}
	return false
}

func isItemStatus(status string) bool {
	switch status {
	case models.ItemPending, models.ItemPreparing, models.ItemReady, models.ItemDelivered, models.ItemCancelled:
		return true
	}
	return false
}

type OrderItemInput struct {
	MenuItemID uint   `json:"menu_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	Notes      string `json:"notes"`
	ExtraIDs   []uint `json:"extra_ids"`
}

type CreateOrderInput struct {
	Items []OrderItemInput `json:"items"`
	Notes string           `json:"notes"`
}

// OrderService -> state machine order & item, penomoran order, agregat harga
type OrderService struct {
	db          *gorm.DB
	sessions    *SessionService
	menu        MenuLookup
	broadcaster Broadcaster
	opts        Options
	locks       *keyedMutex
}

func NewOrderService(db *gorm.DB, sessions *SessionService, menu MenuLookup, broadcaster Broadcaster, opts Options) *OrderService {
	if menu == nil {
		menu = NewGormMenuLookup(db)
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &OrderService{
		db:          db,
		sessions:    sessions,
		menu:        menu,
		broadcaster: broadcaster,
		opts:        opts.withDefaults(),
		locks:       newKeyedMutex(),
	}
}

func validateOrderInput(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return ErrEmptyOrder
	}
	if len(in.Notes) > maxNotesLength {
		return validation("notes must be at most %d characters", maxNotesLength)
	}
	for _, item := range in.Items {
		if item.MenuItemID == 0 {
			return validation("menu_item_id is required")
		}
		if item.Quantity < 1 || item.Quantity > maxItemQuantity {
			return validation("quantity must be between 1 and %d", maxItemQuantity)
		}
		if len(item.Notes) > maxNotesLength {
			return validation("item notes must be at most %d characters", maxNotesLength)
		}
	}
	return nil
}

// buildItems -> snapshot nama & harga saat ini. Harga baris = (harga unit + extras) x qty.
func buildItems(in []OrderItemInput, menu map[uint]MenuItemSnapshot, now time.Time) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(in))
	for _, req := range in {
		snap, ok := menu[req.MenuItemID]
		if !ok {
			return nil, menuItemNotFound(req.MenuItemID)
		}
		if !snap.Available {
			return nil, itemUnavailable(req.MenuItemID)
		}

		unit := snap.Price
		extras := make([]models.OrderItemExtra, 0, len(req.ExtraIDs))
		seen := make(map[uint]bool, len(req.ExtraIDs))
		for _, extraID := range req.ExtraIDs {
			if seen[extraID] {
				continue
			}
			seen[extraID] = true
			extra, ok := snap.Extras[extraID]
			if !ok {
				return nil, validation("extra %d does not belong to menu item %d", extraID, req.MenuItemID)
			}
			if !extra.Available {
				return nil, validation("extra %q is unavailable", extra.Name)
			}
			unit = unit.Add(extra.Price)
			extras = append(extras, models.OrderItemExtra{
				MenuItemExtraID: extra.ID,
				Name:            extra.Name,
				Price:           extra.Price,
			})
		}

		items = append(items, models.OrderItem{
			MenuItemID: snap.ID,
			Name:       snap.Name,
			Quantity:   req.Quantity,
			UnitPrice:  snap.Price,
			Price:      unit.Mul(decimal.NewFromInt(int64(req.Quantity))),
			Notes:      strings.TrimSpace(req.Notes),
			Extras:     extras,
			Status:     models.ItemPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return items, nil
}

func (s *OrderService) counterPeriod(now time.Time) string {
	if s.opts.OrderNumberReset == OrderNumberDaily {
		return now.In(s.opts.Location).Format("2006-01-02")
	}
	return ""
}

// nextOrderNumber -> naikkan counter di dalam transaksi order, rollback = nomor tidak terpakai
func (s *OrderService) nextOrderNumber(tx *gorm.DB, restaurantID uint, now time.Time) (int64, error) {
	period := s.counterPeriod(now)
	res := tx.Model(&models.OrderCounter{}).
		Where("restaurant_id = ? AND period = ?", restaurantID, period).
		UpdateColumn("last_number", gorm.Expr("last_number + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance order counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		counter := models.OrderCounter{RestaurantID: restaurantID, Period: period, LastNumber: 1}
		if err := tx.Create(&counter).Error; err != nil {
			return 0, fmt.Errorf("failed to create order counter: %w", err)
		}
		return 1, nil
	}

	var counter models.OrderCounter
	if err := tx.Where("restaurant_id = ? AND period = ?", restaurantID, period).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("failed to read order counter: %w", err)
	}
	return counter.LastNumber, nil
}

// CreateOrder -> order baru dari session terverifikasi. Order + item dibuat atomik.
func (s *OrderService) CreateOrder(ctx context.Context, token string, in CreateOrderInput) (*models.Order, error) {
	claims, err := utils.ParseSessionToken(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if err := validateOrderInput(in); err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.MenuItemID)
	}
	menu, err := s.menu.LookupItems(ctx, claims.RestaurantID, ids)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	items, err := buildItems(in.Items, menu, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("restaurant:%d", claims.RestaurantID))
	defer unlock()

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.sessions.loadForClaims(tx, claims)
		if err != nil {
			return err
		}

		number, err := s.nextOrderNumber(tx, session.Table.RestaurantID, now)
		if err != nil {
			return err
		}

		order = models.Order{
			RestaurantID: session.Table.RestaurantID,
			OrderNumber:  number,
			Status:       models.OrderPending,
			Discount:     decimal.Zero,
			Notes:        strings.TrimSpace(in.Notes),
			TableID:      session.TableID,
			SessionID:    session.ID,
			Items:        items,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		order.RecalculateTotals()
		if err := tx.Omit("Table").Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		order.Table = session.Table
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"session_id":   order.SessionID,
		"total":        order.Total.StringFixed(2),
	}).Info("Order created")

	s.broadcaster.Emit(events.StaffRooms(order.RestaurantID), events.OrderCreated, events.OrderCreatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TableID:     order.TableID,
		TableNumber: order.Table.Number,
		ItemCount:   len(order.Items),
		Total:       order.Total.StringFixed(2),
		Order:       &order,
	})
	return &order, nil
}

func (s *OrderService) loadOrder(tx *gorm.DB, restaurantID, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Items.Extras").
		Preload("Table").
		Where("id = ? AND restaurant_id = ?", orderID, restaurantID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func (s *OrderService) orderRooms(order *models.Order) []string {
	return append(events.StaffRooms(order.RestaurantID), events.SessionRoom(order.SessionID))
}

// UpdateOrderStatus -> transisi status oleh staff. Request paralel untuk order yang sama
// diserialisasi; yang kalah mendapat InvalidTransition atau Conflict.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, restaurantID, orderID uint, status, reason string) (*models.Order, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !isOrderStatus(status) {
		return nil, validation("unknown order status %q", status)
	}
	reason = strings.TrimSpace(reason)
	if status == models.OrderCancelled && reason == "" {
		return nil, validation("cancel reason is required")
	}

	unlock := s.locks.Lock(fmt.Sprintf("order:%d", orderID))
	defer unlock()

	var (
		order    *models.Order
		previous string
	)
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOrder(tx, restaurantID, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !canTransition(orderTransitions, order.Status, status) {
			return invalidTransition("order", order.Status, status)
		}

		updates := map[string]interface{}{"status": status, "updated_at": now}
		switch status {
		case models.OrderConfirmed:
			updates["confirmed_at"] = now
			order.ConfirmedAt = &now
		case models.OrderReady:
			updates["ready_at"] = now
			order.ReadyAt = &now
		case models.OrderDelivered, models.OrderPaid:
			if order.CompletedAt == nil {
				updates["completed_at"] = now
				order.CompletedAt = &now
			}
		case models.OrderCancelled:
			updates["cancelled_at"] = now
			updates["cancel_reason"] = reason
			order.CancelledAt = &now
			order.CancelReason = reason
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, previous).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		order.Status = status
		order.UpdatedAt = now

		if status == models.OrderCancelled {
			if err := tx.Model(&models.OrderItem{}).
				Where("order_id = ? AND status NOT IN ?", order.ID, []string{models.ItemDelivered, models.ItemCancelled}).
				Updates(map[string]interface{}{"status": models.ItemCancelled, "updated_at": now}).Error; err != nil {
				return fmt.Errorf("failed to cancel order items: %w", err)
			}
			for i := range order.Items {
				if !order.Items[i].IsTerminal() {
					order.Items[i].Status = models.ItemCancelled
					order.Items[i].UpdatedAt = now
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       status,
	}).Info("Order status updated")

	rooms := s.orderRooms(order)
	s.broadcaster.Emit(rooms, events.OrderUpdated, events.OrderUpdatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Previous:    previous,
		TableID:     order.TableID,
		Order:       order,
	})
	if status == models.OrderCancelled {
		s.broadcaster.Emit(rooms, events.OrderCancelled, events.OrderCancelledPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Reason:      order.CancelReason,
			TableID:     order.TableID,
		})
	} else if event, ok := stageEvents[status]; ok {
		s.broadcaster.Emit([]string{events.SessionRoom(order.SessionID)}, event, events.OrderStagePayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		})
	}
	return order, nil
}

// CancelOrder -> pembatalan, hanya dari PENDING/CONFIRMED/PREPARING
func (s *OrderService) CancelOrder(ctx context.Context, restaurantID, orderID uint, reason string) (*models.Order, error) {
	return s.UpdateOrderStatus(ctx, restaurantID, orderID, models.OrderCancelled, reason)
}

// UpdateItemStatus -> transisi status satu item. READY/DELIVERED butuh order minimal CONFIRMED.
func (s *OrderService) UpdateItemStatus(ctx context.Context, restaurantID, orderID, itemID uint, status string) (*models.Order, *models.OrderItem, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !isItemStatus(status) {
		return nil, nil, validation("unknown item status %q", status)
	}

	unlock := s.locks.Lock(fmt.Sprintf("order:%d", orderID))
	defer unlock()

	var (
		order *models.Order
		item  *models.OrderItem
	)
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOrder(tx, restaurantID, orderID)
		if err != nil {
			return err
		}
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			return ErrItemNotFound
		}
		if order.Status == models.OrderCancelled || order.Status == models.OrderPaid {
			return ErrOrderLocked
		}
		if !canTransition(itemTransitions, item.Status, status) {
			return invalidTransition("item", item.Status, status)
		}
		if (status == models.ItemReady || status == models.ItemDelivered) && order.Status == models.OrderPending {
			return ErrOrderNotConfirmed
		}

		res := tx.Model(&models.OrderItem{}).
			Where("id = ? AND status = ?", item.ID, item.Status).
			Updates(map[string]interface{}{"status": status, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to update order item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		item.Status = status
		item.UpdatedAt = now

		if status == models.ItemCancelled && order.Status == models.OrderPending {
			order.RecalculateTotals()
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
				"subtotal":   order.Subtotal,
				"discount":   order.Discount,
				"total":      order.Total,
				"updated_at": now,
			}).Error; err != nil {
				return fmt.Errorf("failed to update order totals: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"item_id":  item.ID,
		"status":   item.Status,
	}).Info("Order item status updated")

	s.broadcaster.Emit(s.orderRooms(order), events.OrderItemUpdated, events.OrderItemUpdatedPayload{
		OrderID:     order.ID,
		ItemID:      item.ID,
		Status:      item.Status,
		OrderStatus: order.Status,
	})
	return order, item, nil
}

// SetDiscount -> diskon staff, hanya selama order masih PENDING
func (s *OrderService) SetDiscount(ctx context.Context, restaurantID, orderID uint, discount decimal.Decimal) (*models.Order, error) {
	if discount.IsNegative() {
		return nil, validation("discount must not be negative")
	}

	unlock := s.locks.Lock(fmt.Sprintf("order:%d", orderID))
	defer unlock()

	var order *models.Order
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOrder(tx, restaurantID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return ErrOrderLocked
		}
		order.RecalculateTotals()
		if discount.GreaterThan(order.Subtotal) {
			return validation("discount must not exceed subtotal %s", order.Subtotal.StringFixed(2))
		}
		order.Discount = discount
		order.RecalculateTotals()
		order.UpdatedAt = now
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"subtotal":   order.Subtotal,
			"discount":   order.Discount,
			"total":      order.Total,
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.Emit(s.orderRooms(order), events.OrderUpdated, events.OrderUpdatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TableID:     order.TableID,
		Order:       order,
	})
	return order, nil
}

// GetOrder -> detail order milik restaurant
func (s *OrderService) GetOrder(ctx context.Context, restaurantID, orderID uint) (*models.Order, error) {
	return s.loadOrder(s.db.WithContext(ctx), restaurantID, orderID)
}

// ListOrders -> order restaurant, opsional filter status (dipisah koma)
func (s *OrderService) ListOrders(ctx context.Context, restaurantID uint, statuses []string) ([]models.Order, error) {
	query := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Extras").
		Preload("Table").
		Where("restaurant_id = ?", restaurantID)
	if len(statuses) > 0 {
		for i, st := range statuses {
			statuses[i] = strings.ToUpper(strings.TrimSpace(st))
			if !isOrderStatus(statuses[i]) {
				return nil, validation("unknown order status %q", st)
			}
		}
		query = query.Where("status IN ?", statuses)
	}

	var orders []models.Order
	if err := query.Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return orders, nil
}

// ListSessionOrders -> semua order milik satu session (refetch setelah reconnect)
func (s *OrderService) ListSessionOrders(ctx context.Context, sessionID string) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Extras").
		Where("session_id = ?", sessionID).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) GetSessionOrder(ctx context.Context, sessionID string, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Extras").
		Where("id = ? AND session_id = ?", orderID, sessionID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}
