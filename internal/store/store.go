package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aquaflow-backend/internal/model"
)

// Store defines the remote data store operations the dashboard relies on.
type Store interface {
	ReadSnapshot(ctx context.Context, unitID string) (Payload, bool, error)
	ListUnitIDs(ctx context.Context) ([]string, error)
	WriteCounterReset(ctx context.Context, unitID string, at time.Time) (int64, error)
	RefillChangeBank(ctx context.Context, unitID string, d Denomination, amount int64) error

	AppendSettlementRecord(ctx context.Context, rec model.SettlementRecord) error
	ListSettlementRecords(ctx context.Context, unitID string) ([]model.SettlementRecord, error)

	PutSettlementIntent(ctx context.Context, intent model.SettlementIntent) error
	DeleteSettlementIntent(ctx context.Context, id string) error
	ListSettlementIntents(ctx context.Context) ([]model.SettlementIntent, error)

	ListOperatorUnits(ctx context.Context, operatorID string) ([]string, error)
	ClaimUnit(ctx context.Context, operatorID, code string) (string, error)
	DeleteUnit(ctx context.Context, operatorID, unitID string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// ReadSnapshot returns the raw machine_state row for the unit. The row is read
// into a map so columns added by newer firmware survive untouched.
func (s *gormStore) ReadSnapshot(ctx context.Context, unitID string) (Payload, bool, error) {
	var rows []map[string]any
	err := s.db.WithContext(ctx).
		Table(model.MachineState{}.TableName()).
		Where("unit_id = ?", unitID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, false, connErr("read snapshot", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return Payload(rows[0]), true, nil
}

// ListUnitIDs returns every unit id present in the store, in store form.
func (s *gormStore) ListUnitIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.MachineState{}).
		Order("unit_id").
		Pluck("unit_id", &ids).Error; err != nil {
		return nil, connErr("list unit ids", err)
	}
	return ids, nil
}

// WriteCounterReset zeroes the inserted-coin counters of exactly unitID and
// returns the number of rows the store reports as changed.
func (s *gormStore) WriteCounterReset(ctx context.Context, unitID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.MachineState{}).
		Where("unit_id = ?", unitID).
		Updates(map[string]any{
			"p1_count":   0,
			"p5_count":   0,
			"p10_count":  0,
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, connErr("write counter reset", res.Error)
	}
	return res.RowsAffected, nil
}

// RefillChangeBank adds coins to one change hopper.
func (s *gormStore) RefillChangeBank(ctx context.Context, unitID string, d Denomination, amount int64) error {
	column, ok := d.column()
	if !ok {
		return fmt.Errorf("unknown denomination %q", d)
	}
	if amount <= 0 {
		return fmt.Errorf("refill amount must be positive, got %d", amount)
	}

	res := s.db.WithContext(ctx).
		Model(&model.MachineState{}).
		Where("unit_id = ?", unitID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return connErr("refill change bank", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSettlementRecord inserts a ledger row. Appending a record whose id is
// already archived is a no-op, which makes recovery replays safe.
func (s *gormStore) AppendSettlementRecord(ctx context.Context, rec model.SettlementRecord) error {
	rec.Seq = 0
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rec).Error; err != nil {
		return connErr("append settlement record", err)
	}
	return nil
}

// ListSettlementRecords returns the unit's ledger, newest collection first.
func (s *gormStore) ListSettlementRecords(ctx context.Context, unitID string) ([]model.SettlementRecord, error) {
	var records []model.SettlementRecord
	if err := s.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("collected_at DESC, seq DESC").
		Find(&records).Error; err != nil {
		return nil, connErr("list settlement records", err)
	}
	return records, nil
}

func (s *gormStore) PutSettlementIntent(ctx context.Context, intent model.SettlementIntent) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage"}),
	}).Create(&intent).Error; err != nil {
		return connErr("put settlement intent", err)
	}
	return nil
}

func (s *gormStore) DeleteSettlementIntent(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.SettlementIntent{}, "id = ?", id).Error; err != nil {
		return connErr("delete settlement intent", err)
	}
	return nil
}

func (s *gormStore) ListSettlementIntents(ctx context.Context) ([]model.SettlementIntent, error) {
	var intents []model.SettlementIntent
	if err := s.db.WithContext(ctx).Order("created_at").Find(&intents).Error; err != nil {
		return nil, connErr("list settlement intents", err)
	}
	return intents, nil
}

// ListOperatorUnits returns the units claimed by the operator, oldest claim first.
func (s *gormStore) ListOperatorUnits(ctx context.Context, operatorID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.Device{}).
		Where("owner_id = ?", operatorID).
		Order("created_at, unit_id").
		Pluck("unit_id", &ids).Error; err != nil {
		return nil, connErr("list operator units", err)
	}
	return ids, nil
}

// ClaimUnit redeems an activation code for the operator and returns the
// claimed unit id. Codes match case-insensitively.
func (s *gormStore) ClaimUnit(ctx context.Context, operatorID, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrClaimRejected
	}

	var unitID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ac model.ActivationCode
		err := tx.Where("LOWER(code) = LOWER(?) AND is_used = ?", code, false).Take(&ac).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClaimRejected
		}
		if err != nil {
			return err
		}

		// Guard against a concurrent claim of the same code.
		res := tx.Model(&model.ActivationCode{}).
			Where("code = ? AND is_used = ?", ac.Code, false).
			Update("is_used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimRejected
		}

		device := model.Device{
			UnitID:             ac.UnitID,
			OwnerID:            operatorID,
			ActivationCodeUsed: ac.Code,
			CreatedAt:          time.Now().UTC(),
		}
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&device)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimRejected
		}
		unitID = ac.UnitID
		return nil
	})
	if errors.Is(err, ErrClaimRejected) {
		return "", ErrClaimRejected
	}
	if err != nil {
		return "", connErr("claim unit", err)
	}
	return unitID, nil
}

// DeleteUnit removes the operator's ownership row and the unit's snapshot row.
func (s *gormStore) DeleteUnit(ctx context.Context, operatorID, unitID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("unit_id = ? AND owner_id = ?", unitID, operatorID).Delete(&model.Device{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("unit_id = ?", unitID).Delete(&model.MachineState{}).Error
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return connErr("delete unit", err)
}
