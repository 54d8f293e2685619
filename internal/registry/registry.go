// Package registry tracks the operator's units and which one is active.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"aquaflow-backend/internal/parse"
	"aquaflow-backend/internal/prefs"
	"aquaflow-backend/internal/session"
	"aquaflow-backend/internal/store"
)

var (
	// ErrConfirmationRequired is returned by RemoveUnit when the caller has not confirmed.
	ErrConfirmationRequired = errors.New("removing a unit requires confirmation")
	// ErrUnknownUnit means the id is not among the operator's units.
	ErrUnknownUnit = errors.New("unit is not registered to this operator")
	// ErrUnauthenticated means no operator is signed in.
	ErrUnauthenticated = errors.New("no authenticated operator")
)

// ClaimReason explains why a claim failed.
type ClaimReason string

const (
	ReasonInvalidOrUsed   ClaimReason = "invalid_or_used"
	ReasonUnauthenticated ClaimReason = "unauthenticated"
)

// ClaimError is returned by AddUnit when a unit could not be claimed.
type ClaimError struct {
	Reason ClaimReason
	Err    error
}

func (e *ClaimError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("claim failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("claim failed (%s)", e.Reason)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// Store is the part of the remote store holding unit ownership.
type Store interface {
	ListOperatorUnits(ctx context.Context, operatorID string) ([]string, error)
	ClaimUnit(ctx context.Context, operatorID, code string) (string, error)
	DeleteUnit(ctx context.Context, operatorID, unitID string) error
}

// Watcher is told whenever the active unit changes. An empty id means none.
type Watcher interface {
	Watch(unitID string)
}

// Registry holds the operator's unit list and the active unit. At most one
// unit is active and it is always a member of the list.
type Registry struct {
	store   Store
	prefs   prefs.Store
	session session.Provider
	watcher Watcher

	mu     sync.RWMutex
	units  []string
	active string
}

// New creates a registry. watcher may be nil.
func New(st Store, p prefs.Store, sess session.Provider, watcher Watcher) *Registry {
	return &Registry{store: st, prefs: p, session: sess, watcher: watcher}
}

// Load lists the operator's units and restores the persisted active unit,
// falling back to the first unit when it is no longer registered.
func (r *Registry) Load(ctx context.Context) error {
	units, err := r.fetch(ctx)
	if err != nil {
		return err
	}

	persisted, _, err := r.prefs.Get(ctx, prefs.ActiveUnitKey)
	if err != nil {
		return err
	}
	active := find(units, persisted)
	if active == "" && len(units) > 0 {
		active = units[0]
		if persisted != "" {
			log.Printf("Persisted active unit %q is no longer registered; using %s", persisted, active)
		}
	}

	r.mu.Lock()
	r.units = units
	r.active = active
	r.mu.Unlock()

	if err := r.persist(ctx, active); err != nil {
		return err
	}
	r.notify(active)
	log.Printf("Registry loaded %d unit(s), active %q", len(units), active)
	return nil
}

// ListUnits refreshes the unit list from the store and returns it, ordered by
// claim time. Ids that normalize to the same form are listed once.
func (r *Registry) ListUnits(ctx context.Context) ([]string, error) {
	units, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.replaceUnits(ctx, units); err != nil {
		return nil, err
	}
	return append([]string(nil), units...), nil
}

// Units returns the cached unit list.
func (r *Registry) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.units...)
}

// Active returns the active unit, if any.
func (r *Registry) Active() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != ""
}

// Lookup returns the list's form of unitID.
func (r *Registry) Lookup(unitID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := find(r.units, unitID)
	return id, id != ""
}

// SetActive selects a unit from the current list. The list's exact form of
// the id is stored.
func (r *Registry) SetActive(ctx context.Context, unitID string) (string, error) {
	r.mu.Lock()
	id := find(r.units, unitID)
	if id == "" {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, unitID)
	}
	changed := id != r.active
	r.active = id
	r.mu.Unlock()

	if err := r.persist(ctx, id); err != nil {
		return "", err
	}
	if changed {
		r.notify(id)
	}
	return id, nil
}

// AddUnit claims a unit with an activation code. The selection is kept
// unless the registry was empty, in which case the new unit becomes active.
func (r *Registry) AddUnit(ctx context.Context, claimCode string) (string, error) {
	operatorID, ok := r.session.OperatorID()
	if !ok {
		return "", &ClaimError{Reason: ReasonUnauthenticated}
	}

	unitID, err := r.store.ClaimUnit(ctx, operatorID, claimCode)
	if errors.Is(err, store.ErrClaimRejected) {
		return "", &ClaimError{Reason: ReasonInvalidOrUsed, Err: err}
	}
	if err != nil {
		return "", err
	}
	log.Printf("Operator %s claimed unit %s", operatorID, unitID)

	units, err := r.fetch(ctx)
	if err != nil {
		return "", err
	}
	if err := r.replaceUnits(ctx, units); err != nil {
		return "", err
	}
	if _, hasActive := r.Active(); !hasActive {
		if _, err := r.SetActive(ctx, unitID); err != nil {
			return "", err
		}
	}
	if id := find(units, unitID); id != "" {
		unitID = id
	}
	return unitID, nil
}

// RemoveUnit deletes a unit's ownership and snapshot rows. Removing the
// active unit activates the first remaining unit, or none.
func (r *Registry) RemoveUnit(ctx context.Context, unitID string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	operatorID, ok := r.session.OperatorID()
	if !ok {
		return ErrUnauthenticated
	}

	r.mu.RLock()
	id := find(r.units, unitID)
	r.mu.RUnlock()
	if id == "" {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, unitID)
	}

	if err := r.store.DeleteUnit(ctx, operatorID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrUnknownUnit, unitID)
		}
		return err
	}
	log.Printf("Operator %s removed unit %s", operatorID, id)

	units, err := r.fetch(ctx)
	if err != nil {
		return err
	}
	return r.replaceUnits(ctx, units)
}

// replaceUnits swaps in a fresh list and moves the selection off units that
// are gone.
func (r *Registry) replaceUnits(ctx context.Context, units []string) error {
	r.mu.Lock()
	r.units = units
	prev := r.active
	active := ""
	if prev != "" {
		active = find(units, prev)
		if active == "" && len(units) > 0 {
			active = units[0]
		}
	}
	r.active = active
	r.mu.Unlock()

	if active == prev {
		return nil
	}
	if err := r.persist(ctx, active); err != nil {
		return err
	}
	r.notify(active)
	return nil
}

func (r *Registry) fetch(ctx context.Context) ([]string, error) {
	operatorID, ok := r.session.OperatorID()
	if !ok {
		return nil, ErrUnauthenticated
	}
	ids, err := r.store.ListOperatorUnits(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	units := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := parse.NormalizeUnitID(id)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		units = append(units, id)
	}
	return units, nil
}

func (r *Registry) persist(ctx context.Context, active string) error {
	if active == "" {
		return r.prefs.Delete(ctx, prefs.ActiveUnitKey)
	}
	return r.prefs.Set(ctx, prefs.ActiveUnitKey, active)
}

func (r *Registry) notify(active string) {
	if r.watcher != nil {
		r.watcher.Watch(active)
	}
}

// find returns the list's form of unitID, or "" when it is not listed.
func find(units []string, unitID string) string {
	if parse.NormalizeUnitID(unitID) == "" {
		return ""
	}
	for _, u := range units {
		if parse.SameUnit(u, unitID) {
			return u
		}
	}
	return ""
}
