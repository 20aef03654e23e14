package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rampa-app/rampa-backend/internal/config"
)

// DSN builds the PostgreSQL connection string. Cloud Run connects through the
// Cloud SQL unix socket, local development over TCP.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.User, cfg.Password, cfg.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
}

// Connect opens the PostgreSQL database
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.InstanceConnectionName != "" {
		log.Printf("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
	} else {
		log.Println("Connecting to local PostgreSQL")
	}

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("✅ Database connected successfully!")
	return db, nil
}

// Ping reports whether the connection is usable
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
