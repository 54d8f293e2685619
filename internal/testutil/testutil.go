// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"aquaflow-backend/internal/db"
	"aquaflow-backend/internal/model"
)

var dbSeq atomic.Int64

// NewSQLite returns a migrated, private in-memory database for one test.
func NewSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:aquaflow_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.MigrateRemote(gormDB))
	require.NoError(t, gormDB.AutoMigrate(&model.Preference{}))
	return gormDB
}

// SeedUnit inserts a machine_state row.
func SeedUnit(t *testing.T, gormDB *gorm.DB, unitID string, coins model.CoinCounts, water int) {
	t.Helper()
	seen := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, gormDB.Create(&model.MachineState{
		UnitID:        unitID,
		P1Count:       coins.P1,
		P5Count:       coins.P5,
		P10Count:      coins.P10,
		ChangeP1Count: 50,
		ChangeP5Count: 50,
		WaterLevel:    water,
		SystemStatus:  "Online",
		UpdatedAt:     time.Now().UTC(),
		LastSeenAt:    &seen,
	}).Error)
}

// SetCoins overwrites a unit's inserted-coin counters the way firmware does.
func SetCoins(t *testing.T, gormDB *gorm.DB, unitID string, coins model.CoinCounts) {
	t.Helper()
	require.NoError(t, gormDB.Model(&model.MachineState{}).
		Where("unit_id = ?", unitID).
		Updates(map[string]any{"p1_count": coins.P1, "p5_count": coins.P5, "p10_count": coins.P10}).Error)
}

// SeedOwnedUnit inserts a unit together with its ownership row.
func SeedOwnedUnit(t *testing.T, gormDB *gorm.DB, operatorID, unitID string, claimedAt time.Time) {
	t.Helper()
	SeedUnit(t, gormDB, unitID, model.CoinCounts{}, 80)
	require.NoError(t, gormDB.Create(&model.Device{
		UnitID:    unitID,
		OwnerID:   operatorID,
		CreatedAt: claimedAt,
	}).Error)
}
