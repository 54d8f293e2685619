// Package history keeps the append-only settlement ledger and its aggregates.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"aquaflow-backend/internal/model"
)

// ErrInvalidRecord is returned by Append for records missing an id, a unit or a time.
var ErrInvalidRecord = errors.New("invalid settlement record")

// RecordStore is the part of the remote store holding the ledger.
type RecordStore interface {
	AppendSettlementRecord(ctx context.Context, rec model.SettlementRecord) error
	ListSettlementRecords(ctx context.Context, unitID string) ([]model.SettlementRecord, error)
}

// VaultReader reports the uncollected amount still inside a unit.
type VaultReader interface {
	LiveVault(ctx context.Context, unitID string) (int64, error)
}

// Summary holds the standard aggregate windows for one unit. Every window
// includes the live vault.
type Summary struct {
	UnitID    string `json:"unitId"`
	Daily     int64  `json:"daily"`
	Weekly    int64  `json:"weekly"`
	Monthly   int64  `json:"monthly"`
	AllTime   int64  `json:"allTime"`
	LiveVault int64  `json:"liveVault"`
	Records   int    `json:"records"`
}

// Archive reads and appends settlement records.
type Archive struct {
	store RecordStore
	vault VaultReader
	loc   *time.Location
	now   func() time.Time
}

// NewArchive creates an archive. loc decides where a day starts.
func NewArchive(st RecordStore, vault VaultReader, loc *time.Location) *Archive {
	if loc == nil {
		loc = time.Local
	}
	return &Archive{store: st, vault: vault, loc: loc, now: time.Now}
}

// Append stores rec once. The total is recomputed from the counts.
func (a *Archive) Append(ctx context.Context, rec model.SettlementRecord) error {
	switch {
	case strings.TrimSpace(rec.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case strings.TrimSpace(rec.UnitID) == "":
		return fmt.Errorf("%w: missing unit id", ErrInvalidRecord)
	case rec.CollectedAt.IsZero():
		return fmt.Errorf("%w: missing collection time", ErrInvalidRecord)
	case rec.P1Collected < 0 || rec.P5Collected < 0 || rec.P10Collected < 0:
		return fmt.Errorf("%w: negative coin count", ErrInvalidRecord)
	}
	rec.TotalAmount = rec.Collected().Total()

	if err := a.store.AppendSettlementRecord(ctx, rec); err != nil {
		return fmt.Errorf("append settlement record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns the unit's records newest first. Records collected at the
// same instant list the later insertion first.
func (a *Archive) List(ctx context.Context, unitID string) ([]model.SettlementRecord, error) {
	records, err := a.store.ListSettlementRecords(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list settlement records for %s: %w", unitID, err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CollectedAt.Equal(records[j].CollectedAt) {
			return records[i].CollectedAt.After(records[j].CollectedAt)
		}
		return records[i].Seq > records[j].Seq
	})
	return records, nil
}

// Aggregate sums the totals collected at or after since plus the live vault.
// A zero since means all time.
func (a *Archive) Aggregate(ctx context.Context, unitID string, since time.Time) (int64, error) {
	records, err := a.store.ListSettlementRecords(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("aggregate %s: %w", unitID, err)
	}
	live, err := a.liveVault(ctx, unitID)
	if err != nil {
		return 0, err
	}
	return sumSince(records, since) + live, nil
}

// Summary computes the daily, weekly, monthly and all-time windows.
func (a *Archive) Summary(ctx context.Context, unitID string) (Summary, error) {
	records, err := a.store.ListSettlementRecords(ctx, unitID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary %s: %w", unitID, err)
	}
	live, err := a.liveVault(ctx, unitID)
	if err != nil {
		return Summary{}, err
	}

	now := a.now().In(a.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)

	return Summary{
		UnitID:    unitID,
		Daily:     sumSince(records, startOfDay) + live,
		Weekly:    sumSince(records, now.AddDate(0, 0, -7)) + live,
		Monthly:   sumSince(records, now.AddDate(0, 0, -30)) + live,
		AllTime:   sumSince(records, time.Time{}) + live,
		LiveVault: live,
		Records:   len(records),
	}, nil
}

func (a *Archive) liveVault(ctx context.Context, unitID string) (int64, error) {
	if a.vault == nil {
		return 0, nil
	}
	live, err := a.vault.LiveVault(ctx, unitID)
	if err != nil {
		return 0, err
	}
	return live, nil
}

func sumSince(records []model.SettlementRecord, since time.Time) int64 {
	var total int64
	for _, rec := range records {
		if since.IsZero() || !rec.CollectedAt.Before(since) {
			total += rec.TotalAmount
		}
	}
	return total
}
