package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status order
const (
	OrderPending   = "PENDING"
	OrderConfirmed = "CONFIRMED"
	OrderPreparing = "PREPARING"
	OrderReady     = "READY"
	OrderDelivered = "DELIVERED"
	OrderPaid      = "PAID"
	OrderCancelled = "CANCELLED"
)

type Order struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RestaurantID uint            `gorm:"not null;index" json:"restaurant_id"`
	OrderNumber  int64           `gorm:"not null;index" json:"order_number"`
	Status       string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Discount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"discount"`
	Total        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CancelReason string          `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	TableID      uint            `gorm:"not null;index" json:"table_id"`
	Table        Table           `gorm:"foreignKey:TableID" json:"-"`
	SessionID    string          `gorm:"type:varchar(36);not null;index" json:"session_id"`
	Items        []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	ReadyAt      *time.Time      `json:"ready_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

// RecalculateTotals -> subtotal dari item yang tidak dibatalkan, total = subtotal - discount
func (o *Order) RecalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		if item.Status == ItemCancelled {
			continue
		}
		subtotal = subtotal.Add(item.Price)
	}
	o.Subtotal = subtotal
	if o.Discount.GreaterThan(subtotal) {
		o.Discount = subtotal
	}
	o.Total = subtotal.Sub(o.Discount)
}

// OrderCounter -> nomor order terakhir per restaurant (dan per periode jika reset harian)
type OrderCounter struct {
	RestaurantID uint   `gorm:"primaryKey;autoIncrement:false"`
	Period       string `gorm:"primaryKey;type:varchar(10)"`
	LastNumber   int64  `gorm:"not null;default:0"`
}
