// Package prefs persists client-side settings across restarts.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aquaflow-backend/internal/model"
)

// ActiveUnitKey is the well-known key holding the selected unit id.
const ActiveUnitKey = "active_unit_id"

// Store reads and writes string preferences.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type gormPrefs struct {
	db *gorm.DB
}

// NewGormStore returns a preference store backed by the local database.
func NewGormStore(db *gorm.DB) Store {
	return &gormPrefs{db: db}
}

func (p *gormPrefs) Get(ctx context.Context, key string) (string, bool, error) {
	var pref model.Preference
	err := p.db.WithContext(ctx).Take(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %q: %w", key, err)
	}
	return pref.Value, true, nil
}

func (p *gormPrefs) Set(ctx context.Context, key, value string) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.Preference{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("write preference %q: %w", key, err)
	}
	return nil
}

func (p *gormPrefs) Delete(ctx context.Context, key string) error {
	if err := p.db.WithContext(ctx).Delete(&model.Preference{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}
