package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem -> data menu milik restaurant. CRUD menu ada di luar modul ini,
// order hanya membaca nama/harga/ketersediaan lalu menyalinnya (snapshot).
type MenuItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RestaurantID uint            `gorm:"not null;index" json:"restaurant_id"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	IsAvailable  bool            `gorm:"not null;default:true" json:"is_available"`
	Extras       []MenuItemExtra `gorm:"foreignKey:MenuItemID" json:"extras"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

type MenuItemExtra struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	MenuItemID  uint            `gorm:"not null;index" json:"menu_item_id"`
	Name        string          `gorm:"type:varchar(100);not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	IsAvailable bool            `gorm:"not null;default:true" json:"is_available"`
}
