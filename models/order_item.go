package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status item order
const (
	ItemPending   = "PENDING"
	ItemPreparing = "PREPARING"
	ItemReady     = "READY"
	ItemDelivered = "DELIVERED"
	ItemCancelled = "CANCELLED"
)

type OrderItem struct {
	ID      uint  `gorm:"primaryKey" json:"id"`
	OrderID uint  `gorm:"not null;index" json:"order_id"`
	// Omitting Order field from JSON to avoid recursive nesting
	Order      Order            `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	MenuItemID uint             `gorm:"not null" json:"menu_item_id"`
	Name       string           `gorm:"type:varchar(255);not null" json:"name"`
	Quantity   int              `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Price      decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"price"`
	Notes      string           `gorm:"type:text" json:"notes"`
	Extras     []OrderItemExtra `gorm:"foreignKey:OrderItemID" json:"extras"`
	Status     string           `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	CreatedAt  time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"not null" json:"updated_at"`
}

// OrderItemExtra -> snapshot nama dan harga extra saat order dibuat
type OrderItemExtra struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderItemID     uint            `gorm:"not null;index" json:"-"`
	MenuItemExtraID uint            `gorm:"not null" json:"menu_item_extra_id"`
	Name            string          `gorm:"type:varchar(100);not null" json:"name"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
}

// IsTerminal -> item sudah selesai (delivered) atau dibatalkan
func (i *OrderItem) IsTerminal() bool {
	return i.Status == ItemDelivered || i.Status == ItemCancelled
}
