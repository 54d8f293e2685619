package model

// Level is a coarse health label shown next to a gauge.
type Level string

const (
	LevelOK       Level = "OK"
	LevelLow      Level = "LOW"
	LevelCritical Level = "CRITICAL"
	LevelEmpty    Level = "EMPTY"
	LevelNominal  Level = "NOMINAL"
	LevelOptimal  Level = "OPTIMAL"
)

// LowChangeThreshold is the coin count under which a change hopper is low.
const LowChangeThreshold = 20

// CoinStatus classifies a change-bank hopper by its coin count.
func CoinStatus(count int64) (Level, string) {
	switch {
	case count <= 0:
		return LevelCritical, "OUT OF CHANGE"
	case count < LowChangeThreshold:
		return LevelLow, "LOW"
	default:
		return LevelOK, "OK"
	}
}

// WaterStatus classifies a reservoir level given in percent.
func WaterStatus(percent int) Level {
	switch {
	case percent <= 0:
		return LevelEmpty
	case percent < 20:
		return LevelCritical
	case percent < 60:
		return LevelNominal
	default:
		return LevelOptimal
	}
}
