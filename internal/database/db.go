package database

import (
	"log"

	"supplychain-backend/internal/config"
	"supplychain-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	// TranslateError maps driver-specific unique-violation errors to
	// gorm.ErrDuplicatedKey, which the orders store relies on for the
	// order-ID retry.
	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	err = DB.AutoMigrate(
		&models.Stock{},
		&models.StockHistory{},
		&models.Order{},
		&models.PushSubscription{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("Database connected, migrations complete.")
}
