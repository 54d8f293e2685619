package syncer

import (
	"fmt"

	"aquaflow-backend/internal/model"
)

// deriveAlerts compares two consecutive snapshots of the same unit and
// returns the alerts for conditions that were entered between them.
func deriveAlerts(prev, next model.UnitSnapshot) []model.Alert {
	var alerts []model.Alert

	prevWater, nextWater := model.WaterStatus(prev.WaterLevelPercent), model.WaterStatus(next.WaterLevelPercent)
	if nextWater != prevWater && (nextWater == model.LevelCritical || nextWater == model.LevelEmpty) {
		alerts = append(alerts, model.Alert{
			UnitID: next.UnitID,
			Kind:   model.AlertWaterLevel,
			Title:  fmt.Sprintf("%s water %s", next.UnitID, nextWater),
			Body:   fmt.Sprintf("Reservoir is at %d%%.", next.WaterLevelPercent),
		})
	}

	hoppers := []struct {
		name       string
		prev, next int64
	}{
		{name: "P1", prev: prev.ChangeBank.P1, next: next.ChangeBank.P1},
		{name: "P5", prev: prev.ChangeBank.P5, next: next.ChangeBank.P5},
	}
	for _, h := range hoppers {
		prevLevel, _ := model.CoinStatus(h.prev)
		nextLevel, label := model.CoinStatus(h.next)
		if nextLevel == prevLevel || nextLevel == model.LevelOK {
			continue
		}
		alerts = append(alerts, model.Alert{
			UnitID: next.UnitID,
			Kind:   model.AlertChangeBank,
			Title:  fmt.Sprintf("%s %s change %s", next.UnitID, h.name, label),
			Body:   fmt.Sprintf("%d %s coins left for change.", h.next, h.name),
		})
	}

	if prev.SystemStatus != next.SystemStatus {
		alerts = append(alerts, model.Alert{
			UnitID: next.UnitID,
			Kind:   model.AlertSystemStatus,
			Title:  fmt.Sprintf("%s is %s", next.UnitID, next.SystemStatus),
			Body:   fmt.Sprintf("Status changed from %s to %s.", prev.SystemStatus, next.SystemStatus),
		})
	}
	return alerts
}
