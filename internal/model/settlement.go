package model

import "time"

// SettlementRecord is one archived cash collection. Rows are append-only.
type SettlementRecord struct {
	Seq          int64     `gorm:"column:seq;primaryKey;autoIncrement" json:"-"`
	ID           string    `gorm:"column:id;uniqueIndex;size:64;not null" json:"id"`
	UnitID       string    `gorm:"column:unit_id;index;size:64;not null" json:"unitId"`
	P1Collected  int64     `gorm:"column:p1_collected;not null" json:"p1Collected"`
	P5Collected  int64     `gorm:"column:p5_collected;not null" json:"p5Collected"`
	P10Collected int64     `gorm:"column:p10_collected;not null" json:"p10Collected"`
	TotalAmount  int64     `gorm:"column:total_amount;not null" json:"totalAmount"`
	CollectedAt  time.Time `gorm:"column:collected_at;index;not null" json:"collectedAt"`
}

// TableName matches the ledger table of the dashboard schema.
func (SettlementRecord) TableName() string { return "collection_history" }

// NewSettlementRecord builds a record whose total follows the fixed
// denomination formula.
func NewSettlementRecord(id, unitID string, collected CoinCounts, at time.Time) SettlementRecord {
	return SettlementRecord{
		ID:           id,
		UnitID:       unitID,
		P1Collected:  collected.P1,
		P5Collected:  collected.P5,
		P10Collected: collected.P10,
		TotalAmount:  collected.Total(),
		CollectedAt:  at,
	}
}

// Collected returns the coin counts captured by the record.
func (r SettlementRecord) Collected() CoinCounts {
	return CoinCounts{P1: r.P1Collected, P5: r.P5Collected, P10: r.P10Collected}
}

// IntentStage tracks how far a settlement got before its ledger row was written.
type IntentStage string

const (
	IntentPending       IntentStage = "pending"
	IntentResetVerified IntentStage = "reset_verified"
)

// SettlementIntent marks a settlement between the counter reset and the
// ledger append. A leftover intent means the process stopped in between.
type SettlementIntent struct {
	ID        string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	UnitID    string      `gorm:"column:unit_id;index;size:64;not null" json:"unitId"`
	P1        int64       `gorm:"column:p1;not null" json:"p1"`
	P5        int64       `gorm:"column:p5;not null" json:"p5"`
	P10       int64       `gorm:"column:p10;not null" json:"p10"`
	Stage     IntentStage `gorm:"column:stage;size:32;not null" json:"stage"`
	CreatedAt time.Time   `gorm:"column:created_at;not null" json:"createdAt"`
}

// Counts returns the coin counts the intent is about to collect.
func (i SettlementIntent) Counts() CoinCounts {
	return CoinCounts{P1: i.P1, P5: i.P5, P10: i.P10}
}
