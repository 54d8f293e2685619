package model

import "time"

// Coin denominations in currency units.
const (
	ValueP1  = 1
	ValueP5  = 5
	ValueP10 = 10
)

// DefaultSystemStatus is reported when a unit has never sent a status label.
const DefaultSystemStatus = "Offline"

// CoinCounts holds the number of inserted coins per denomination.
type CoinCounts struct {
	P1  int64 `json:"p1"`
	P5  int64 `json:"p5"`
	P10 int64 `json:"p10"`
}

// Total returns the currency value of the counted coins.
func (c CoinCounts) Total() int64 {
	return c.P1*ValueP1 + c.P5*ValueP5 + c.P10*ValueP10
}

// IsZero reports whether every denomination is zero.
func (c CoinCounts) IsZero() bool {
	return c.P1 == 0 && c.P5 == 0 && c.P10 == 0
}

// ChangeBank holds the coins available for giving change.
type ChangeBank struct {
	P1 int64 `json:"p1"`
	P5 int64 `json:"p5"`
}

// UnitSnapshot is the latest known full state of one unit. Values are
// replaced as a whole, never merged field by field.
type UnitSnapshot struct {
	UnitID            string     `json:"unitId"`
	InsertedCoins     CoinCounts `json:"insertedCoins"`
	ChangeBank        ChangeBank `json:"changeBank"`
	WaterLevelPercent int        `json:"waterLevelPercent"`
	SystemStatus      string     `json:"systemStatus"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	// LastSeenAt is nil when the unit never reported a heartbeat.
	LastSeenAt *time.Time `json:"lastSeenAt"`
}

// VaultTotal is the currency value of the coins not yet collected.
func (s UnitSnapshot) VaultTotal() int64 {
	return s.InsertedCoins.Total()
}
