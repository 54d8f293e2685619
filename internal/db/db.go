package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/model"
)

// RemoteModels are the tables of the shared fleet database.
var RemoteModels = []any{
	&model.MachineState{},
	&model.Device{},
	&model.ActivationCode{},
	&model.SettlementRecord{},
	&model.SettlementIntent{},
	&model.PushSubscription{},
}

// Init opens the remote fleet database and optionally migrates it.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if cfg.AutoMigrate {
		log.Println("Running database migrations...")
		if err := MigrateRemote(db); err != nil {
			return nil, err
		}
	}

	if cfg.EnableRealtime {
		log.Println("Realtime is enabled, publishing machine_state changes...")
		if err := applyRealtimeDDL(db); err != nil {
			log.Printf("Warning: failed to apply realtime DDL: %v. Push feed may stay silent.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// MigrateRemote creates or updates the fleet tables.
func MigrateRemote(db *gorm.DB) error {
	if err := db.AutoMigrate(RemoteModels...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// OpenLocal opens the SQLite file that keeps client-side preferences.
func OpenLocal(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&model.Preference{}); err != nil {
		return nil, fmt.Errorf("local automigrate failed: %w", err)
	}
	return db, nil
}

// applyRealtimeDDL adds machine_state to the realtime publication so that
// every row change reaches the websocket feed with its full record.
func applyRealtimeDDL(db *gorm.DB) error {
	ddls := []string{
		"ALTER TABLE machine_state REPLICA IDENTITY FULL;",
		"ALTER PUBLICATION supabase_realtime ADD TABLE machine_state;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
