package config

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
	"github.com/AllanGomesCorrea/QRmenu-sub001/utils"
)

// Dialector -> pilih driver gorm dari DB_DRIVER
func Dialector(cfg DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
}

// InitDB membuka koneksi database sesuai konfigurasi
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	utils.InfoLogger.Printf("Connected to %s database", cfg.Driver)
	return db, nil
}

// AutoMigrate migrasi semua model
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Restaurant{},
		&models.StaffUser{},
		&models.Table{},
		&models.TableSession{},
		&models.VerificationCode{},
		&models.MenuItem{},
		&models.MenuItemExtra{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemExtra{},
		&models.OrderCounter{},
	)
	if err != nil {
		return fmt.Errorf("failed to AutoMigrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
