package settlement

import (
	"errors"
	"fmt"
	"strings"

	"aquaflow-backend/internal/model"
)

// ErrSettlementInProgress rejects a second settlement of a unit that is
// already being settled.
var ErrSettlementInProgress = errors.New("a settlement for this unit is already in progress")

// ErrNothingToCollect rejects a settlement whose collected counts are all
// zero: there is no cash to record and no counter to reset.
var ErrNothingToCollect = errors.New("the vault is empty, nothing to collect")

// ErrInvalidCounts rejects negative collected coin counts.
var ErrInvalidCounts = errors.New("collected coin counts must not be negative")

// ResolutionError means the requested id did not match exactly one unit in the store.
type ResolutionError struct {
	Requested string
	Matches   []string
}

func (e *ResolutionError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no unit in the store matches %q", e.Requested)
	}
	return fmt.Sprintf("unit id %q is ambiguous: matches %s", e.Requested, strings.Join(e.Matches, ", "))
}

// WriteError means the counter reset did not take effect on the store.
type WriteError struct {
	UnitID string
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reset of %s failed: %s: %v", e.UnitID, e.Reason, e.Err)
	}
	return fmt.Sprintf("reset of %s failed: %s", e.UnitID, e.Reason)
}

func (e *WriteError) Unwrap() error { return e.Err }

// OverwriteDetectedError means the counters were non-zero again when read
// back after the reset. The device most likely wrote its own counters over
// the reset, so the collected cash was not recorded.
type OverwriteDetectedError struct {
	UnitID string
	Found  model.CoinCounts
}

func (e *OverwriteDetectedError) Error() string {
	return fmt.Sprintf("counters of %s were overwritten after the reset (p1=%d p5=%d p10=%d); the collection was not recorded, settle again once the unit is idle",
		e.UnitID, e.Found.P1, e.Found.P5, e.Found.P10)
}
