// Package settlement performs the collect-and-zero transaction against the
// remote store and archives the collected amount.
package settlement

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/parse"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

// Phase is a step of one settlement.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResolving Phase = "resolving"
	PhaseUpdating  Phase = "updating"
	PhaseVerifying Phase = "verifying"
	PhaseArchiving Phase = "archiving"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Store is the part of the remote store a settlement touches.
type Store interface {
	ListUnitIDs(ctx context.Context) ([]string, error)
	WriteCounterReset(ctx context.Context, unitID string, at time.Time) (int64, error)
	ReadSnapshot(ctx context.Context, unitID string) (store.Payload, bool, error)
	PutSettlementIntent(ctx context.Context, intent model.SettlementIntent) error
	DeleteSettlementIntent(ctx context.Context, id string) error
	ListSettlementIntents(ctx context.Context) ([]model.SettlementIntent, error)
}

// Archiver appends records to the settlement ledger.
type Archiver interface {
	Append(ctx context.Context, rec model.SettlementRecord) error
}

// Suppressor holds back stale counter readings of a freshly settled unit.
type Suppressor interface {
	Suppress(unitID string, until time.Time)
}

// Result describes a completed settlement.
type Result struct {
	UnitID string                 `json:"unitId"`
	Record model.SettlementRecord `json:"record"`
	Amount int64                  `json:"amount"`
}

// RecoveryReport lists what Recover did with leftover intents.
type RecoveryReport struct {
	Archived []string                 `json:"archived"`
	Pending  []model.SettlementIntent `json:"pending"`
}

// Coordinator runs settlements. Settlements of different units may run
// concurrently; a unit is settled by at most one caller at a time.
type Coordinator struct {
	store      Store
	archive    Archiver
	suppressor Suppressor
	window     time.Duration
	timeout    time.Duration
	now        func() time.Time
	newID      func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCoordinator creates a coordinator. suppressor may be nil.
func NewCoordinator(st Store, archive Archiver, suppressor Suppressor, cfg config.SyncConfig) *Coordinator {
	return &Coordinator{
		store:      st,
		archive:    archive,
		suppressor: suppressor,
		window:     cfg.SuppressionWindow,
		timeout:    cfg.FetchTimeout,
		now:        time.Now,
		newID:      uuid.NewString,
		inFlight:   make(map[string]struct{}),
	}
}

// Settle zeroes the coin counters of the unit matching requestedID and
// archives collected, the counts the operator saw when starting. It never
// retries: on OverwriteDetectedError nothing is recorded.
func (c *Coordinator) Settle(ctx context.Context, requestedID string, collected model.CoinCounts) (*Result, error) {
	if collected.P1 < 0 || collected.P5 < 0 || collected.P10 < 0 {
		return nil, ErrInvalidCounts
	}

	c.phase(requestedID, PhaseResolving)
	unitID, err := c.resolve(ctx, requestedID)
	if err != nil {
		c.fail(requestedID, PhaseResolving, err)
		return nil, err
	}
	if collected.IsZero() {
		c.fail(unitID, PhaseResolving, ErrNothingToCollect)
		return nil, ErrNothingToCollect
	}

	if !c.acquire(unitID) {
		return nil, ErrSettlementInProgress
	}
	defer c.release(unitID)

	now := c.now().UTC()
	intent := model.SettlementIntent{
		ID:        c.newID(),
		UnitID:    unitID,
		P1:        collected.P1,
		P5:        collected.P5,
		P10:       collected.P10,
		Stage:     model.IntentPending,
		CreatedAt: now,
	}

	c.phase(unitID, PhaseUpdating)
	if err := c.update(ctx, intent); err != nil {
		c.fail(unitID, PhaseUpdating, err)
		return nil, err
	}

	c.phase(unitID, PhaseVerifying)
	if err := c.verify(ctx, intent); err != nil {
		c.fail(unitID, PhaseVerifying, err)
		return nil, err
	}

	c.phase(unitID, PhaseArchiving)
	rec := model.NewSettlementRecord(intent.ID, unitID, collected, now)
	if err := c.archiveIntent(ctx, intent.ID, rec); err != nil {
		// The reset is verified; Recover archives the intent later.
		log.Printf("Settlement %s of %s: archiving failed, intent kept for recovery: %v", intent.ID, unitID, err)
		return nil, err
	}

	if c.suppressor != nil {
		c.suppressor.Suppress(unitID, c.now().Add(c.window))
	}
	c.phase(unitID, PhaseDone)
	log.Printf("Settlement %s of %s collected %d", rec.ID, unitID, rec.TotalAmount)
	return &Result{UnitID: unitID, Record: rec, Amount: rec.TotalAmount}, nil
}

// resolve maps the requested id to the exact form stored remotely.
func (c *Coordinator) resolve(ctx context.Context, requestedID string) (string, error) {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	ids, err := c.store.ListUnitIDs(callCtx)
	if err != nil {
		return "", err
	}

	var matches []string
	if parse.NormalizeUnitID(requestedID) != "" {
		for _, id := range ids {
			if parse.SameUnit(id, requestedID) {
				matches = append(matches, id)
			}
		}
	}
	if len(matches) != 1 {
		return "", &ResolutionError{Requested: requestedID, Matches: matches}
	}
	return matches[0], nil
}

func (c *Coordinator) update(ctx context.Context, intent model.SettlementIntent) error {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.store.PutSettlementIntent(callCtx, intent); err != nil {
		return fmt.Errorf("record settlement intent: %w", err)
	}

	rows, err := c.store.WriteCounterReset(callCtx, intent.UnitID, intent.CreatedAt)
	if err != nil {
		// Outcome unknown: the pending intent stays for review.
		return err
	}
	if rows == 0 {
		c.dropIntent(ctx, intent.ID)
		return &WriteError{UnitID: intent.UnitID, Reason: "no row was updated"}
	}
	return nil
}

func (c *Coordinator) verify(ctx context.Context, intent model.SettlementIntent) error {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	payload, found, err := c.store.ReadSnapshot(callCtx, intent.UnitID)
	if err != nil {
		return err
	}
	if !found {
		c.dropIntent(ctx, intent.ID)
		return &WriteError{UnitID: intent.UnitID, Reason: "row disappeared after the reset"}
	}
	if coins := syncer.Adapt(payload).InsertedCoins; !coins.IsZero() {
		c.dropIntent(ctx, intent.ID)
		return &OverwriteDetectedError{UnitID: intent.UnitID, Found: coins}
	}

	intent.Stage = model.IntentResetVerified
	if err := c.store.PutSettlementIntent(callCtx, intent); err != nil {
		return fmt.Errorf("mark reset verified: %w", err)
	}
	return nil
}

func (c *Coordinator) archiveIntent(ctx context.Context, intentID string, rec model.SettlementRecord) error {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.archive.Append(callCtx, rec); err != nil {
		return err
	}
	if err := c.store.DeleteSettlementIntent(callCtx, intentID); err != nil {
		// A later Recover re-appends the same id as a no-op.
		log.Printf("Error clearing settlement intent %s: %v", intentID, err)
	}
	return nil
}

// Recover finishes settlements interrupted after a verified reset and
// reports the ones interrupted before it. Pending intents are never resolved
// automatically because the reset may not have happened.
func (c *Coordinator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	intents, err := c.Pending(ctx)
	if err != nil {
		return report, err
	}

	for _, intent := range intents {
		switch intent.Stage {
		case model.IntentResetVerified:
			rec := model.NewSettlementRecord(intent.ID, intent.UnitID, intent.Counts(), intent.CreatedAt)
			if err := c.archiveIntent(ctx, intent.ID, rec); err != nil {
				return report, fmt.Errorf("recover settlement %s: %w", intent.ID, err)
			}
			log.Printf("Recovered settlement %s of %s (%d)", intent.ID, intent.UnitID, rec.TotalAmount)
			report.Archived = append(report.Archived, intent.ID)
		default:
			log.Printf("Warning: settlement %s of %s stopped before its reset was verified; check the unit and settle again if needed", intent.ID, intent.UnitID)
			report.Pending = append(report.Pending, intent)
		}
	}
	return report, nil
}

// Pending lists the settlement intents that have not been archived yet.
func (c *Coordinator) Pending(ctx context.Context) ([]model.SettlementIntent, error) {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	intents, err := c.store.ListSettlementIntents(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list settlement intents: %w", err)
	}
	return intents, nil
}

func (c *Coordinator) dropIntent(ctx context.Context, id string) {
	if err := c.store.DeleteSettlementIntent(ctx, id); err != nil {
		log.Printf("Error clearing settlement intent %s: %v", id, err)
	}
}

func (c *Coordinator) acquire(unitID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[unitID]; busy {
		return false
	}
	c.inFlight[unitID] = struct{}{}
	return true
}

func (c *Coordinator) release(unitID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, unitID)
}

func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Coordinator) phase(unitID string, p Phase) {
	log.Printf("Settlement of %s: %s", unitID, p)
}

func (c *Coordinator) fail(unitID string, p Phase, err error) {
	log.Printf("Settlement of %s: %s during %s: %v", unitID, PhaseFailed, p, err)
}
