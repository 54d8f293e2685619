package syncer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/store"
)

// Lookup paths per field, newest firmware layout first. A dotted path walks
// nested objects.
var (
	unitIDPaths   = []string{"unit_id", "unitId", "machine_id"}
	p1Paths       = []string{"p1_count", "inserted_coins.p1", "insertedCoins.p1", "coins.p1"}
	p5Paths       = []string{"p5_count", "inserted_coins.p5", "insertedCoins.p5", "coins.p5"}
	p10Paths      = []string{"p10_count", "inserted_coins.p10", "insertedCoins.p10", "coins.p10"}
	changeP1Paths = []string{"change_p1_count", "change_bank.p1", "changeBank.p1"}
	changeP5Paths = []string{"change_p5_count", "change_bank.p5", "changeBank.p5"}
	waterPaths    = []string{"water_level", "waterLevel"}
	statusPaths   = []string{"system_status", "systemAlerts", "system_alerts"}
	updatedPaths  = []string{"updated_at", "lastUpdated", "last_updated"}
	lastSeenPaths = []string{"last_seen_at", "lastSeen", "last_seen"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Adapt converts a raw payload of any known layout into a snapshot. It never
// fails: missing or unreadable numbers become zero, a missing status becomes
// model.DefaultSystemStatus and a missing last-seen time stays unknown.
func Adapt(p store.Payload) model.UnitSnapshot {
	snap := model.UnitSnapshot{
		UnitID: strings.TrimSpace(lookupString(p, unitIDPaths)),
		InsertedCoins: model.CoinCounts{
			P1:  lookupCount(p, p1Paths),
			P5:  lookupCount(p, p5Paths),
			P10: lookupCount(p, p10Paths),
		},
		ChangeBank: model.ChangeBank{
			P1: lookupCount(p, changeP1Paths),
			P5: lookupCount(p, changeP5Paths),
		},
		WaterLevelPercent: int(min(max(lookupCount(p, waterPaths), 0), 100)),
		SystemStatus:      lookupString(p, statusPaths),
	}
	if snap.SystemStatus == "" {
		snap.SystemStatus = model.DefaultSystemStatus
	}
	if t, ok := lookupTime(p, updatedPaths); ok {
		snap.UpdatedAt = t
	}
	if t, ok := lookupTime(p, lastSeenPaths); ok {
		snap.LastSeenAt = &t
	}
	return snap
}

func lookup(p store.Payload, paths []string) (any, bool) {
	for _, path := range paths {
		if v, ok := walk(map[string]any(p), strings.Split(path, ".")); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func walk(m map[string]any, keys []string) (any, bool) {
	v, ok := m[keys[0]]
	if !ok {
		return nil, false
	}
	if len(keys) == 1 {
		return v, true
	}
	next, ok := asObject(v)
	if !ok {
		return nil, false
	}
	return walk(next, keys[1:])
}

// asObject accepts nested objects, including ones stored as JSON text.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case store.Payload:
		return t, true
	case string:
		return decodeObject([]byte(t))
	case []byte:
		return decodeObject(t)
	case json.RawMessage:
		return decodeObject(t)
	}
	return nil, false
}

func decodeObject(b []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// lookupCount returns the first readable count, clamped to be non-negative.
func lookupCount(p store.Payload, paths []string) int64 {
	v, ok := lookup(p, paths)
	if !ok {
		return 0
	}
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return clampUint(uint64(n)), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return clampUint(n), true
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return fromFloat(f)
	case string:
		return parseNumber(n)
	case []byte:
		return parseNumber(string(n))
	}
	return 0, false
}

func clampUint(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func fromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return fromFloat(f)
}

func lookupString(p store.Payload, paths []string) string {
	v, ok := lookup(p, paths)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int, int32, int64, float64, json.Number:
		return toDisplay(s)
	}
	return ""
}

func toDisplay(v any) string {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case json.Number:
		return n.String()
	}
	return ""
}

func lookupTime(p store.Payload, paths []string) (time.Time, bool) {
	for _, path := range paths {
		v, ok := walk(map[string]any(p), strings.Split(path, "."))
		if !ok || v == nil {
			continue
		}
		if t, ok := toTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	// Numeric epochs: milliseconds when large enough, seconds otherwise.
	n, ok := toInt(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	if n >= 1e12 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
