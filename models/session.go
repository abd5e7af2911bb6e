package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alasan penutupan session
const (
	CloseReasonPaymentCompleted = "payment_completed"
	CloseReasonSessionExpired   = "session_expired"
	CloseReasonAdminClosed      = "admin_closed"
)

// TableSession -> ikatan antara meja, customer dan device (fingerprint)
type TableSession struct {
	ID                string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TableID           uint       `gorm:"not null;index:idx_session_table_device" json:"table_id"`
	Table             Table      `gorm:"foreignKey:TableID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	CustomerName      string     `gorm:"type:varchar(100);not null" json:"customer_name"`
	CustomerPhone     string     `gorm:"type:varchar(20);not null" json:"customer_phone"`
	DeviceFingerprint string     `gorm:"type:varchar(128);not null;index:idx_session_table_device" json:"-"`
	IsVerified        bool       `gorm:"not null;default:false" json:"is_verified"`
	IsActive          bool       `gorm:"not null;default:true;index" json:"is_active"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	ExpiresAt         time.Time  `gorm:"not null;index" json:"expires_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	CloseReason       string     `gorm:"type:varchar(30)" json:"close_reason,omitempty"`
	TokenID           string     `gorm:"type:varchar(36)" json:"-"`
	IPAddress         string     `gorm:"type:varchar(64)" json:"-"`
	UserAgent         string     `gorm:"type:varchar(255)" json:"-"`
	Latitude          *float64   `json:"-"`
	Longitude         *float64   `json:"-"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

// BeforeCreate hook to auto-generate UUID
func (s *TableSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsCurrent -> session masih berlaku pada waktu now
func (s *TableSession) IsCurrent(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// VerificationCode -> kode OTP per (phone, qr code). Code disimpan dalam bentuk hash bcrypt.
type VerificationCode struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Phone       string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_code_key" json:"phone"`
	TableQRCode string    `gorm:"column:table_qr_code;type:varchar(100);not null;uniqueIndex:idx_code_key" json:"table_qr_code"`
	CodeHash    string    `gorm:"type:varchar(100);not null" json:"-"`
	Attempts    int       `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
}
