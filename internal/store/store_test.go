package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/testutil"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_WriteCounterReset_SQL(t *testing.T) {
	testCases := []struct {
		name         string
		rowsAffected int64
	}{
		{name: "row updated", rowsAffected: 1},
		{name: "no matching row", rowsAffected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE "machine_state" SET`)).
				WillReturnResult(sqlmock.NewResult(0, tc.rowsAffected))
			mock.ExpectCommit()

			n, err := s.WriteCounterReset(context.Background(), "AQUA-VND-001", time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.rowsAffected, n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_ReadSnapshot_ConnectivityError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machine_state"`)).
		WillReturnError(errors.New("connection reset by peer"))

	_, found, err := s.ReadSnapshot(context.Background(), "AQUA-VND-001")
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, IsConnectivity(err))
	assert.Contains(t, err.Error(), "read snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewSQLite(t)
	s := NewGormStore(gormDB)

	testutil.SeedUnit(t, gormDB, "AQUA-VND-001", model.CoinCounts{P1: 10, P5: 4, P10: 2}, 75)
	testutil.SeedUnit(t, gormDB, "AQUA-VND-002", model.CoinCounts{}, 30)

	ids, err := s.ListUnitIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AQUA-VND-001", "AQUA-VND-002"}, ids)

	payload, found, err := s.ReadSnapshot(ctx, "AQUA-VND-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 10, payload["p1_count"])
	assert.EqualValues(t, 75, payload["water_level"])

	_, found, err = s.ReadSnapshot(ctx, "aqua-vnd-001")
	require.NoError(t, err)
	assert.False(t, found, "store lookups use the exact stored form")

	n, err := s.WriteCounterReset(ctx, "AQUA-VND-001", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var row model.MachineState
	require.NoError(t, gormDB.First(&row, "unit_id = ?", "AQUA-VND-001").Error)
	assert.Zero(t, row.P1Count)
	assert.Zero(t, row.P5Count)
	assert.Zero(t, row.P10Count)
	assert.Equal(t, 75, row.WaterLevel, "reset must not touch other fields")

	n, err = s.WriteCounterReset(ctx, "AQUA-VND-404", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGormStore_RefillChangeBank(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewSQLite(t)
	s := NewGormStore(gormDB)
	testutil.SeedUnit(t, gormDB, "AQUA-VND-001", model.CoinCounts{}, 50)

	require.NoError(t, s.RefillChangeBank(ctx, "AQUA-VND-001", DenominationP5, 25))

	var row model.MachineState
	require.NoError(t, gormDB.First(&row, "unit_id = ?", "AQUA-VND-001").Error)
	assert.Equal(t, int64(75), row.ChangeP5Count)
	assert.Equal(t, int64(50), row.ChangeP1Count)

	assert.ErrorIs(t, s.RefillChangeBank(ctx, "AQUA-VND-404", DenominationP1, 5), ErrNotFound)
	assert.Error(t, s.RefillChangeBank(ctx, "AQUA-VND-001", Denomination("P10"), 5))
	assert.Error(t, s.RefillChangeBank(ctx, "AQUA-VND-001", DenominationP1, 0))
}

func TestGormStore_SettlementRecords(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testutil.NewSQLite(t))

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	first := model.NewSettlementRecord("rec-a", "AQUA-VND-001", model.CoinCounts{P1: 1}, base)
	tie := model.NewSettlementRecord("rec-b", "AQUA-VND-001", model.CoinCounts{P5: 1}, base)
	newest := model.NewSettlementRecord("rec-c", "AQUA-VND-001", model.CoinCounts{P10: 1}, base.Add(time.Hour))
	other := model.NewSettlementRecord("rec-d", "AQUA-VND-002", model.CoinCounts{P10: 3}, base)

	for _, rec := range []model.SettlementRecord{first, tie, newest, other} {
		require.NoError(t, s.AppendSettlementRecord(ctx, rec))
	}
	// Replaying an archived id is a no-op.
	require.NoError(t, s.AppendSettlementRecord(ctx, first))

	records, err := s.ListSettlementRecords(ctx, "AQUA-VND-001")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "rec-c", records[0].ID)
	assert.Equal(t, "rec-b", records[1].ID, "ties list the later insertion first")
	assert.Equal(t, "rec-a", records[2].ID)
	assert.Equal(t, int64(10), records[0].TotalAmount)
}

func TestGormStore_SettlementIntents(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testutil.NewSQLite(t))

	intent := model.SettlementIntent{
		ID:        "int-1",
		UnitID:    "AQUA-VND-001",
		P1:        3,
		Stage:     model.IntentPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutSettlementIntent(ctx, intent))

	intent.Stage = model.IntentResetVerified
	require.NoError(t, s.PutSettlementIntent(ctx, intent))

	intents, err := s.ListSettlementIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentResetVerified, intents[0].Stage)
	assert.Equal(t, int64(3), intents[0].P1)

	require.NoError(t, s.DeleteSettlementIntent(ctx, "int-1"))
	intents, err = s.ListSettlementIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestGormStore_ClaimAndDeleteUnit(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewSQLite(t)
	s := NewGormStore(gormDB)

	testutil.SeedUnit(t, gormDB, "AQUA-VND-007", model.CoinCounts{}, 90)
	require.NoError(t, gormDB.Create(&model.ActivationCode{Code: "WaTeR-7", UnitID: "AQUA-VND-007"}).Error)

	_, err := s.ClaimUnit(ctx, "op-1", "nope")
	assert.ErrorIs(t, err, ErrClaimRejected)

	unitID, err := s.ClaimUnit(ctx, "op-1", "  water-7 ")
	require.NoError(t, err)
	assert.Equal(t, "AQUA-VND-007", unitID)

	_, err = s.ClaimUnit(ctx, "op-2", "WATER-7")
	assert.ErrorIs(t, err, ErrClaimRejected, "a code can be redeemed once")

	units, err := s.ListOperatorUnits(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"AQUA-VND-007"}, units)

	assert.ErrorIs(t, s.DeleteUnit(ctx, "op-2", "AQUA-VND-007"), ErrNotFound)
	require.NoError(t, s.DeleteUnit(ctx, "op-1", "AQUA-VND-007"))

	units, err = s.ListOperatorUnits(ctx, "op-1")
	require.NoError(t, err)
	assert.Empty(t, units)

	_, found, err := s.ReadSnapshot(ctx, "AQUA-VND-007")
	require.NoError(t, err)
	assert.False(t, found)
}
