package model

import "time"

// MachineState is the per-unit counter row written by the unit firmware.
type MachineState struct {
	UnitID        string     `gorm:"column:unit_id;primaryKey;size:64"`
	P1Count       int64      `gorm:"column:p1_count;not null;default:0"`
	P5Count       int64      `gorm:"column:p5_count;not null;default:0"`
	P10Count      int64      `gorm:"column:p10_count;not null;default:0"`
	ChangeP1Count int64      `gorm:"column:change_p1_count;not null;default:0"`
	ChangeP5Count int64      `gorm:"column:change_p5_count;not null;default:0"`
	WaterLevel    int        `gorm:"column:water_level;not null;default:0"`
	SystemStatus  string     `gorm:"column:system_status;size:128"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at"`
}

// TableName keeps the singular table name used by the unit firmware.
func (MachineState) TableName() string { return "machine_state" }
