package models

import "time"

// Restaurant -> tenant. Semua lookup table/session/order difilter per restaurant.
type Restaurant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	LogoURL   *string   `gorm:"type:varchar(255)" json:"logo_url"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// StaffUser -> akun staff. Login & role dikelola layanan auth di luar modul ini,
// model ini hanya dipakai untuk relasi dan seed.
type StaffUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RestaurantID uint       `gorm:"not null;index" json:"restaurant_id"`
	Restaurant   Restaurant `gorm:"foreignKey:RestaurantID" json:"-"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role         string     `gorm:"type:varchar(20);not null" json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role staff
const (
	RoleAdmin   = "admin"
	RoleKitchen = "kitchen"
	RoleWaiter  = "waiter"
)
