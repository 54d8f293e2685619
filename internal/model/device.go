package model

import "time"

// Device links a unit to the operator that claimed it.
type Device struct {
	UnitID             string    `gorm:"column:unit_id;primaryKey;size:64"`
	OwnerID            string    `gorm:"column:owner_id;index;size:64;not null"`
	ActivationCodeUsed string    `gorm:"column:activation_code_used;size:64"`
	CreatedAt          time.Time `gorm:"column:created_at;not null"`
}

// ActivationCode is a one-time claim code shipped with a unit.
type ActivationCode struct {
	Code      string    `gorm:"column:code;primaryKey;size:64"`
	UnitID    string    `gorm:"column:unit_id;size:64;not null"`
	IsUsed    bool      `gorm:"column:is_used;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at"`
}
