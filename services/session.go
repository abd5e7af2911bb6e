package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// SessionService -> siklus hidup session meja: registrasi, verifikasi, token, penutupan
type SessionService struct {
	db          *gorm.DB
	broadcaster Broadcaster
	opts        Options
	locks       *keyedMutex
}

func NewSessionService(db *gorm.DB, broadcaster Broadcaster, opts Options) *SessionService {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &SessionService{
		db:          db,
		broadcaster: broadcaster,
		opts:        opts.withDefaults(),
		locks:       newKeyedMutex(),
	}
}

type TableInfo struct {
	ID             uint   `json:"id"`
	Number         int    `json:"number"`
	Name           string `json:"name"`
	Capacity       int    `json:"capacity"`
	Status         string `json:"status"`
	ActiveSessions int64  `json:"active_sessions"`
}

type RestaurantInfo struct {
	ID       uint    `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	LogoURL  *string `json:"logo_url"`
	IsActive bool    `json:"is_active"`
}

type TableStatus struct {
	Table      TableInfo      `json:"table"`
	Restaurant RestaurantInfo `json:"restaurant"`
	CanJoin    bool           `json:"can_join"`
}

type CreateSessionInput struct {
	Slug              string
	QRCode            string
	CustomerName      string
	CustomerPhone     string
	DeviceFingerprint string
	UserAgent         string
	IPAddress         string
	Latitude          *float64
	Longitude         *float64
}

// VerifiedSession -> hasil verifikasi: session plus bearer token-nya
type VerifiedSession struct {
	Session *models.TableSession `json:"session"`
	Token   string               `json:"session_token"`
}

// resolveTable -> table + restaurant dari QR code. Restaurant lain / nonaktif => TableNotFound.
func resolveTable(tx *gorm.DB, slug, qrCode string) (*models.Table, *models.Restaurant, error) {
	if strings.TrimSpace(qrCode) == "" {
		return nil, nil, ErrTableNotFound
	}

	var table models.Table
	if err := tx.Where("qr_code = ?", qrCode).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTableNotFound
		}
		return nil, nil, fmt.Errorf("failed to load table: %w", err)
	}

	var restaurant models.Restaurant
	if err := tx.First(&restaurant, table.RestaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTableNotFound
		}
		return nil, nil, fmt.Errorf("failed to load restaurant: %w", err)
	}
	if !restaurant.IsActive || (slug != "" && restaurant.Slug != slug) {
		return nil, nil, ErrTableNotFound
	}
	return &table, &restaurant, nil
}

func (s *SessionService) countActive(tx *gorm.DB, tableID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.TableSession{}).
		Where("table_id = ? AND is_active = ? AND expires_at > ?", tableID, true, s.opts.Now()).
		Count(&count).Error
	return count, err
}

// GetTableStatus -> info meja untuk halaman scan QR
func (s *SessionService) GetTableStatus(ctx context.Context, slug, qrCode string) (*TableStatus, error) {
	db := s.db.WithContext(ctx)
	table, restaurant, err := resolveTable(db, slug, qrCode)
	if err != nil {
		return nil, err
	}

	active, err := s.countActive(db, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	return &TableStatus{
		Table: TableInfo{
			ID:             table.ID,
			Number:         table.Number,
			Name:           table.Name,
			Capacity:       table.Capacity,
			Status:         table.Status,
			ActiveSessions: active,
		},
		Restaurant: RestaurantInfo{
			ID:       restaurant.ID,
			Name:     restaurant.Name,
			Slug:     restaurant.Slug,
			LogoURL:  restaurant.LogoURL,
			IsActive: restaurant.IsActive,
		},
		CanJoin: table.CanJoin(),
	}, nil
}

func (s *SessionService) findActive(tx *gorm.DB, tableID uint, fingerprint string) (*models.TableSession, error) {
	var session models.TableSession
	err := tx.Where("table_id = ? AND device_fingerprint = ? AND is_active = ?", tableID, fingerprint, true).
		Order("created_at desc").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// CheckExistingSession -> session aktif milik device ini di meja ini, nil jika tidak ada
func (s *SessionService) CheckExistingSession(ctx context.Context, slug, qrCode, fingerprint string) (*models.TableSession, error) {
	if fingerprint == "" {
		return nil, validation("fingerprint is required")
	}
	db := s.db.WithContext(ctx)
	table, _, err := resolveTable(db, slug, qrCode)
	if err != nil {
		return nil, err
	}

	session, err := s.findActive(db, table.ID, fingerprint)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.IsCurrent(s.opts.Now()) {
		return nil, nil
	}
	return session, nil
}

func validateCreateInput(in CreateSessionInput) error {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" || len(name) > 100 {
		return validation("customer name is required (max 100 characters)")
	}
	if err := ValidatePhoneNumber(in.CustomerPhone); err != nil {
		return err
	}
	if in.DeviceFingerprint == "" || len(in.DeviceFingerprint) > 128 {
		return validation("device fingerprint is required")
	}
	return nil
}

// CreateSession -> registrasi customer di meja. Device yang sama di meja yang sama selalu
// memakai ulang session aktifnya, tidak pernah membuat duplikat.
func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*models.TableSession, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)

	var (
		session      *models.TableSession
		expired      *models.TableSession
		table        *models.Table
		occupiedFlip bool
	)

	// resolve dulu di luar lock supaya key lock memakai table ID. Lock per meja, bukan per
	// device: cek kapasitas dan insert harus atomik terhadap device lain di meja yang sama.
	t, _, err := resolveTable(s.db.WithContext(ctx), in.Slug, in.QRCode)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(fmt.Sprintf("table:%d", t.ID))
	defer unlock()

	now := s.opts.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		table, _, err = resolveTable(tx, in.Slug, in.QRCode)
		if err != nil {
			return err
		}
		if !table.CanJoin() {
			return ErrTableInactive
		}

		existing, err := s.findActive(tx, table.ID, in.DeviceFingerprint)
		if err != nil {
			return err
		}

		if existing != nil && existing.IsCurrent(now) {
			updates := map[string]interface{}{
				"customer_name": in.CustomerName,
				"user_agent":    in.UserAgent,
				"ip_address":    in.IPAddress,
				"expires_at":    now.Add(s.opts.SessionTTL),
				"updated_at":    now,
			}
			if existing.CustomerPhone != in.CustomerPhone {
				// nomor berubah -> wajib verifikasi ulang, token lama dicabut
				updates["customer_phone"] = in.CustomerPhone
				updates["is_verified"] = false
				updates["verified_at"] = nil
				updates["token_id"] = ""
			}
			if in.Latitude != nil && in.Longitude != nil {
				updates["latitude"] = *in.Latitude
				updates["longitude"] = *in.Longitude
			}
			if err := tx.Model(&models.TableSession{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to refresh session: %w", err)
			}
			existing.CustomerName = in.CustomerName
			existing.ExpiresAt = now.Add(s.opts.SessionTTL)
			existing.UpdatedAt = now
			if existing.CustomerPhone != in.CustomerPhone {
				existing.CustomerPhone = in.CustomerPhone
				existing.IsVerified = false
				existing.VerifiedAt = nil
				existing.TokenID = ""
			}
			session = existing
			return nil
		}

		if existing != nil {
			// session lama sudah lewat expires_at tapi belum disapu sweeper
			if err := s.deactivate(tx, existing, models.CloseReasonSessionExpired, now); err != nil {
				return err
			}
			expired = existing
		}

		if table.Capacity > 0 {
			// antar instance: row lock di postgres/mysql, diabaikan oleh sqlite
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").First(&models.Table{}, table.ID).Error; err != nil {
				return fmt.Errorf("failed to lock table: %w", err)
			}
			active, err := s.countActive(tx, table.ID)
			if err != nil {
				return fmt.Errorf("failed to count sessions: %w", err)
			}
			if active >= int64(table.Capacity) {
				return ErrTableFull
			}
		}

		session = &models.TableSession{
			TableID:           table.ID,
			CustomerName:      in.CustomerName,
			CustomerPhone:     in.CustomerPhone,
			DeviceFingerprint: in.DeviceFingerprint,
			IsVerified:        false,
			IsActive:          true,
			ExpiresAt:         now.Add(s.opts.SessionTTL),
			IPAddress:         in.IPAddress,
			UserAgent:         in.UserAgent,
			Latitude:          in.Latitude,
			Longitude:         in.Longitude,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Omit("Table").Create(session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		occupiedFlip, err = s.markOccupied(tx, table, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.emitClosed(expired, models.CloseReasonSessionExpired)
	}
	if occupiedFlip {
		s.emitTable(table)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"table_id":   session.TableID,
		"verified":   session.IsVerified,
	}).Info("Table session registered")
	return session, nil
}

// markOccupied -> ACTIVE => OCCUPIED, status lain tidak disentuh
func (s *SessionService) markOccupied(tx *gorm.DB, table *models.Table, now time.Time) (bool, error) {
	if table.Status != models.TableActive {
		return false, nil
	}
	res := tx.Model(&models.Table{}).
		Where("id = ? AND status = ?", table.ID, models.TableActive).
		Updates(map[string]interface{}{"status": models.TableOccupied, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update table status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	table.Status = models.TableOccupied
	return true, nil
}

// VerifySession -> tandai session (table, fingerprint, phone) terverifikasi dan terbitkan token
func (s *SessionService) VerifySession(ctx context.Context, tableID uint, fingerprint, phone string) (*VerifiedSession, error) {
	var (
		result *VerifiedSession
		table  *models.Table
		flip   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, table, flip, err = s.verifyTx(tx, tableID, fingerprint, phone)
		return err
	})
	if err != nil {
		return nil, err
	}
	if flip {
		s.emitTable(table)
	}
	return result, nil
}

func (s *SessionService) verifyTx(tx *gorm.DB, tableID uint, fingerprint, phone string) (*VerifiedSession, *models.Table, bool, error) {
	now := s.opts.Now()

	session, err := s.findActive(tx, tableID, fingerprint)
	if err != nil {
		return nil, nil, false, err
	}
	if session == nil || !session.IsCurrent(now) || session.CustomerPhone != phone {
		return nil, nil, false, ErrSessionNotFound
	}

	var table models.Table
	if err := tx.First(&table, tableID).Error; err != nil {
		return nil, nil, false, fmt.Errorf("failed to load table: %w", err)
	}

	tokenID := uuid.NewString()
	session.IsVerified = true
	session.VerifiedAt = &now
	session.TokenID = tokenID
	session.UpdatedAt = now
	if err := tx.Model(&models.TableSession{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
		"is_verified": true,
		"verified_at": now,
		"token_id":    tokenID,
		"updated_at":  now,
	}).Error; err != nil {
		return nil, nil, false, fmt.Errorf("failed to verify session: %w", err)
	}

	flip, err := s.markOccupied(tx, &table, now)
	if err != nil {
		return nil, nil, false, err
	}

	token, err := utils.GenerateSessionToken(session.ID, table.ID, table.RestaurantID, tokenID, now, session.ExpiresAt)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to sign session token: %w", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"table_id":   table.ID,
	}).Info("Table session verified")
	return &VerifiedSession{Session: session, Token: token}, &table, flip, nil
}

// checkClaims -> aturan token berlaku: verified && active && now < expiresAt && jti cocok
func (s *SessionService) checkClaims(session *models.TableSession, claims *utils.SessionClaims) error {
	if !session.IsVerified || !session.IsCurrent(s.opts.Now()) {
		return ErrInvalidSession
	}
	if session.TokenID == "" || session.TokenID != claims.ID || session.TableID != claims.TableID {
		return ErrInvalidSession
	}
	if session.Table.ID != 0 && session.Table.RestaurantID != claims.RestaurantID {
		return ErrInvalidSession
	}
	return nil
}

func (s *SessionService) loadForClaims(tx *gorm.DB, claims *utils.SessionClaims) (*models.TableSession, error) {
	var session models.TableSession
	if err := tx.Preload("Table").First(&session, "id = ?", claims.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.checkClaims(&session, claims); err != nil {
		return nil, err
	}
	return &session, nil
}

// ResolveToken -> session dari bearer token. Semua kegagalan => InvalidSession (fail closed).
func (s *SessionService) ResolveToken(ctx context.Context, token string) (*models.TableSession, error) {
	claims, err := utils.ParseSessionToken(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return s.loadForClaims(s.db.WithContext(ctx), claims)
}

func validCloseReason(reason string) bool {
	switch reason {
	case models.CloseReasonPaymentCompleted, models.CloseReasonSessionExpired, models.CloseReasonAdminClosed:
		return true
	}
	return false
}

func (s *SessionService) deactivate(tx *gorm.DB, session *models.TableSession, reason string, now time.Time) error {
	if err := tx.Model(&models.TableSession{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
		"is_active":    false,
		"token_id":     "",
		"closed_at":    now,
		"close_reason": reason,
		"updated_at":   now,
	}).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	session.IsActive = false
	session.TokenID = ""
	session.ClosedAt = &now
	session.CloseReason = reason
	return nil
}

// CloseSession -> nonaktifkan session milik restaurant ini dan kabari device-nya
func (s *SessionService) CloseSession(ctx context.Context, restaurantID uint, sessionID, reason string) (*models.TableSession, error) {
	if !validCloseReason(reason) {
		return nil, validation("invalid close reason %q", reason)
	}

	var (
		session models.TableSession
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Table").First(&session, "id = ?", sessionID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session.Table.RestaurantID != restaurantID {
			return ErrSessionNotFound
		}
		if !session.IsActive {
			return nil
		}
		changed = true
		return s.deactivate(tx, &session, reason, s.opts.Now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.emitClosed(&session, reason)
	}
	return &session, nil
}

// closeTableSessions -> tutup semua session aktif meja dalam transaksi pemanggil
func (s *SessionService) closeTableSessions(tx *gorm.DB, tableID uint, reason string) ([]models.TableSession, error) {
	var sessions []models.TableSession
	if err := tx.Where("table_id = ? AND is_active = ?", tableID, true).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	now := s.opts.Now()
	for i := range sessions {
		if err := s.deactivate(tx, &sessions[i], reason, now); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// CloseExpired -> dipanggil sweeper: tutup session yang sudah lewat expires_at
func (s *SessionService) CloseExpired(ctx context.Context) (int, error) {
	var sessions []models.TableSession
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_active = ? AND expires_at <= ?", true, now).Find(&sessions).Error; err != nil {
			return fmt.Errorf("failed to load expired sessions: %w", err)
		}
		for i := range sessions {
			if err := s.deactivate(tx, &sessions[i], models.CloseReasonSessionExpired, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := range sessions {
		s.emitClosed(&sessions[i], models.CloseReasonSessionExpired)
	}
	return len(sessions), nil
}

// ListTableSessions -> session aktif di meja (staff)
func (s *SessionService) ListTableSessions(ctx context.Context, restaurantID, tableID uint) ([]models.TableSession, error) {
	var table models.Table
	if err := s.db.WithContext(ctx).Where("id = ? AND restaurant_id = ?", tableID, restaurantID).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("failed to load table: %w", err)
	}

	var sessions []models.TableSession
	if err := s.db.WithContext(ctx).
		Where("table_id = ? AND is_active = ? AND expires_at > ?", tableID, true, s.opts.Now()).
		Order("created_at asc").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return sessions, nil
}

func closeMessage(reason string) string {
	switch reason {
	case models.CloseReasonPaymentCompleted:
		return "Payment completed. Thank you for your visit!"
	case models.CloseReasonSessionExpired:
		return "Your session has expired. Scan the table QR code to start again."
	default:
		return "Your session was closed by the restaurant staff."
	}
}

func (s *SessionService) emitClosed(session *models.TableSession, reason string) {
	s.broadcaster.Emit([]string{events.SessionRoom(session.ID)}, events.SessionClosed, events.SessionClosedPayload{
		SessionID: session.ID,
		TableID:   session.TableID,
		Reason:    reason,
		Message:   closeMessage(reason),
	})
	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"table_id":   session.TableID,
		"reason":     reason,
	}).Info("Table session closed")
}

func (s *SessionService) emitTable(table *models.Table) {
	s.broadcaster.Emit(events.StaffRooms(table.RestaurantID), events.TableUpdated, events.TableUpdatedPayload{
		TableID:     table.ID,
		TableNumber: table.Number,
		Status:      table.Status,
	})
}
