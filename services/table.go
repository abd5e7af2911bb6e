package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/AllanGomesCorrea/QRmenu-sub001/cooldown"
	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// TableService -> status meja oleh staff dan interaksi customer (panggil waiter, minta bill)
type TableService struct {
	db          *gorm.DB
	sessions    *SessionService
	guard       *cooldown.Guard
	broadcaster Broadcaster
	opts        Options
	locks       *keyedMutex
}

func NewTableService(db *gorm.DB, sessions *SessionService, guard *cooldown.Guard, broadcaster Broadcaster, opts Options) *TableService {
	opts = opts.withDefaults()
	if guard == nil {
		guard = cooldown.New(opts.InteractionCooldown, opts.Now)
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &TableService{
		db:          db,
		sessions:    sessions,
		guard:       guard,
		broadcaster: broadcaster,
		opts:        opts,
		locks:       newKeyedMutex(),
	}
}

// Guard dipakai sweeper untuk prune
func (s *TableService) Guard() *cooldown.Guard {
	return s.guard
}

type TableSummary struct {
	models.Table
	ActiveSessions int64 `json:"active_sessions"`
}

// ListTables -> semua meja restaurant beserta jumlah session aktif
func (s *TableService) ListTables(ctx context.Context, restaurantID uint) ([]TableSummary, error) {
	db := s.db.WithContext(ctx)
	var tables []models.Table
	if err := db.Where("restaurant_id = ?", restaurantID).Order("number asc").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}

	type countRow struct {
		TableID uint
		Total   int64
	}
	var rows []countRow
	if err := db.Model(&models.TableSession{}).
		Select("table_id, COUNT(*) AS total").
		Joins("JOIN tables ON tables.id = table_sessions.table_id").
		Where("tables.restaurant_id = ? AND table_sessions.is_active = ? AND table_sessions.expires_at > ?", restaurantID, true, s.opts.Now()).
		Group("table_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.TableID] = row.Total
	}

	result := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		result = append(result, TableSummary{Table: t, ActiveSessions: counts[t.ID]})
	}
	return result, nil
}

func (s *TableService) loadTable(tx *gorm.DB, restaurantID, tableID uint) (*models.Table, error) {
	var table models.Table
	if err := tx.Where("id = ? AND restaurant_id = ?", tableID, restaurantID).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	return &table, nil
}

// transition -> ubah status meja, opsional tutup semua session aktifnya
func (s *TableService) transition(ctx context.Context, restaurantID, tableID uint, allowed []string, target, closeReason string) (*models.Table, error) {
	unlock := s.locks.Lock(fmt.Sprintf("table:%d", tableID))
	defer unlock()

	var (
		table  *models.Table
		closed []models.TableSession
	)
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		table, err = s.loadTable(tx, restaurantID, tableID)
		if err != nil {
			return err
		}
		ok := false
		for _, from := range allowed {
			if table.Status == from {
				ok = true
				break
			}
		}
		if !ok {
			return invalidTransition("table", table.Status, target)
		}

		res := tx.Model(&models.Table{}).
			Where("id = ? AND status = ?", table.ID, table.Status).
			Updates(map[string]interface{}{"status": target, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to update table: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		table.Status = target
		table.UpdatedAt = now

		if closeReason != "" {
			closed, err = s.sessions.closeTableSessions(tx, table.ID, closeReason)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range closed {
		s.guard.Forget(closed[i].ID)
		s.sessions.emitClosed(&closed[i], closeReason)
	}
	s.sessions.emitTable(table)

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":        table.ID,
		"status":          table.Status,
		"closed_sessions": len(closed),
	}).Info("Table status updated")
	return table, nil
}

// ActivateTable -> INACTIVE/CLOSED => ACTIVE (siap untuk tamu berikutnya)
func (s *TableService) ActivateTable(ctx context.Context, restaurantID, tableID uint) (*models.Table, error) {
	return s.transition(ctx, restaurantID, tableID,
		[]string{models.TableInactive, models.TableClosed}, models.TableActive, "")
}

// DeactivateTable -> meja ditutup untuk registrasi, session aktif ditutup admin_closed
func (s *TableService) DeactivateTable(ctx context.Context, restaurantID, tableID uint) (*models.Table, error) {
	return s.transition(ctx, restaurantID, tableID,
		[]string{models.TableActive, models.TableOccupied, models.TableBillRequested, models.TableClosed},
		models.TableInactive, models.CloseReasonAdminClosed)
}

// CloseTable -> meja selesai dipakai (bayar / ditutup staff), semua session ditutup
func (s *TableService) CloseTable(ctx context.Context, restaurantID, tableID uint, reason string) (*models.Table, error) {
	if reason == "" {
		reason = models.CloseReasonPaymentCompleted
	}
	if reason != models.CloseReasonPaymentCompleted && reason != models.CloseReasonAdminClosed {
		return nil, validation("invalid close reason %q", reason)
	}
	return s.transition(ctx, restaurantID, tableID,
		[]string{models.TableActive, models.TableOccupied, models.TableBillRequested},
		models.TableClosed, reason)
}

// SetStatus -> PATCH status dari dashboard: ACTIVE / INACTIVE / CLOSED
func (s *TableService) SetStatus(ctx context.Context, restaurantID, tableID uint, status string) (*models.Table, error) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case models.TableActive:
		return s.ActivateTable(ctx, restaurantID, tableID)
	case models.TableInactive:
		return s.DeactivateTable(ctx, restaurantID, tableID)
	case models.TableClosed:
		return s.CloseTable(ctx, restaurantID, tableID, models.CloseReasonAdminClosed)
	}
	return nil, validation("status must be ACTIVE, INACTIVE or CLOSED")
}

// InteractionResult -> hasil call-waiter / request-bill, Cooldown = detik sampai boleh lagi
type InteractionResult struct {
	Action   string `json:"action"`
	Cooldown int    `json:"cooldown"`
}

func (s *TableService) checkSession(session *models.TableSession) error {
	if session == nil || !session.IsVerified || !session.IsCurrent(s.opts.Now()) {
		return ErrInvalidSession
	}
	return nil
}

func (s *TableService) tryInvoke(session *models.TableSession, action string) (cooldown.Result, error) {
	res := s.guard.TryInvoke(session.ID, action)
	if !res.Allowed {
		return res, rateLimited(res.Remaining)
	}
	return res, nil
}

// CallWaiter -> kirim panggilan ke dashboard. Cooldown server-side per session.
func (s *TableService) CallWaiter(ctx context.Context, session *models.TableSession, reason string) (*InteractionResult, error) {
	if err := s.checkSession(session); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 200 {
		return nil, validation("reason must be at most 200 characters")
	}

	table, err := s.loadSessionTable(ctx, session)
	if err != nil {
		return nil, err
	}
	res, err := s.tryInvoke(session, cooldown.ActionCallWaiter)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Emit([]string{events.RestaurantRoom(table.RestaurantID)}, events.TableWaiterCalled, events.WaiterCalledPayload{
		TableID:     table.ID,
		TableNumber: table.Number,
		SessionID:   session.ID,
		Customer:    session.CustomerName,
		Reason:      reason,
	})
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":   table.ID,
		"session_id": session.ID,
	}).Info("Waiter called")
	return &InteractionResult{Action: cooldown.ActionCallWaiter, Cooldown: res.Remaining}, nil
}

// RequestBill -> meja ACTIVE/OCCUPIED menjadi BILL_REQUESTED dan dashboard diberi tahu
func (s *TableService) RequestBill(ctx context.Context, session *models.TableSession) (*InteractionResult, error) {
	if err := s.checkSession(session); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("table:%d", session.TableID))
	defer unlock()

	table, err := s.loadSessionTable(ctx, session)
	if err != nil {
		return nil, err
	}
	res, err := s.tryInvoke(session, cooldown.ActionRequestBill)
	if err != nil {
		return nil, err
	}

	flipped := false
	if table.Status == models.TableActive || table.Status == models.TableOccupied {
		update := s.db.WithContext(ctx).Model(&models.Table{}).
			Where("id = ? AND status = ?", table.ID, table.Status).
			Updates(map[string]interface{}{"status": models.TableBillRequested, "updated_at": s.opts.Now()})
		if update.Error != nil {
			// cooldown dikembalikan supaya customer bisa mencoba lagi
			s.guard.Reset(session.ID, cooldown.ActionRequestBill)
			return nil, fmt.Errorf("failed to update table: %w", update.Error)
		}
		if update.RowsAffected > 0 {
			table.Status = models.TableBillRequested
			flipped = true
		}
	}

	s.broadcaster.Emit([]string{events.RestaurantRoom(table.RestaurantID)}, events.TableBillRequest, events.BillRequestedPayload{
		TableID:     table.ID,
		TableNumber: table.Number,
		SessionID:   session.ID,
		Customer:    session.CustomerName,
	})
	if flipped {
		s.sessions.emitTable(table)
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":   table.ID,
		"session_id": session.ID,
	}).Info("Bill requested")
	return &InteractionResult{Action: cooldown.ActionRequestBill, Cooldown: res.Remaining}, nil
}

func (s *TableService) loadSessionTable(ctx context.Context, session *models.TableSession) (*models.Table, error) {
	var table models.Table
	if err := s.db.WithContext(ctx).First(&table, session.TableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	return &table, nil
}
