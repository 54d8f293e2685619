package model

// AlertKind names the condition that raised an alert.
type AlertKind string

const (
	AlertWaterLevel   AlertKind = "water_level"
	AlertChangeBank   AlertKind = "change_bank"
	AlertSystemStatus AlertKind = "system_status"
)

// Alert is a notification-worthy transition observed on a unit.
type Alert struct {
	UnitID string
	Kind   AlertKind
	Title  string
	Body   string
}
