package models

import "time"

// Status meja
const (
	TableInactive      = "INACTIVE"
	TableActive        = "ACTIVE"
	TableOccupied      = "OCCUPIED"
	TableBillRequested = "BILL_REQUESTED"
	TableClosed        = "CLOSED"
)

type Table struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RestaurantID uint       `gorm:"not null;index" json:"restaurant_id"`
	Restaurant   Restaurant `gorm:"foreignKey:RestaurantID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Number       int        `gorm:"not null" json:"number"`
	Name         string     `gorm:"type:varchar(100)" json:"name"`
	Capacity     int        `gorm:"not null;default:0" json:"capacity"`
	QRCode       string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"qr_code"`
	Status       string     `gorm:"type:varchar(20);not null;default:'INACTIVE'" json:"status"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

// CanJoin -> meja menerima session baru hanya saat ACTIVE atau OCCUPIED
func (t *Table) CanJoin() bool {
	return t.Status == TableActive || t.Status == TableOccupied
}
