package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
)

// MenuExtraSnapshot / MenuItemSnapshot -> data menu yang dibaca saat order dibuat
type MenuExtraSnapshot struct {
	ID        uint
	Name      string
	Price     decimal.Decimal
	Available bool
}

type MenuItemSnapshot struct {
	ID        uint
	Name      string
	Price     decimal.Decimal
	Available bool
	Extras    map[uint]MenuExtraSnapshot
}

// MenuLookup -> kolaborator katalog menu. Item yang tidak ada tidak dimasukkan ke map.
type MenuLookup interface {
	LookupItems(ctx context.Context, restaurantID uint, ids []uint) (map[uint]MenuItemSnapshot, error)
}

// GormMenuLookup membaca tabel menu_items milik restaurant
type GormMenuLookup struct {
	DB *gorm.DB
}

func NewGormMenuLookup(db *gorm.DB) *GormMenuLookup {
	return &GormMenuLookup{DB: db}
}

func (l *GormMenuLookup) LookupItems(ctx context.Context, restaurantID uint, ids []uint) (map[uint]MenuItemSnapshot, error) {
	var items []models.MenuItem
	if err := l.DB.WithContext(ctx).
		Preload("Extras").
		Where("restaurant_id = ? AND id IN ?", restaurantID, ids).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}

	result := make(map[uint]MenuItemSnapshot, len(items))
	for _, item := range items {
		snap := MenuItemSnapshot{
			ID:        item.ID,
			Name:      item.Name,
			Price:     item.Price,
			Available: item.IsAvailable,
			Extras:    make(map[uint]MenuExtraSnapshot, len(item.Extras)),
		}
		for _, extra := range item.Extras {
			snap.Extras[extra.ID] = MenuExtraSnapshot{
				ID:        extra.ID,
				Name:      extra.Name,
				Price:     extra.Price,
				Available: extra.IsAvailable,
			}
		}
		result[item.ID] = snap
	}
	return result, nil
}
