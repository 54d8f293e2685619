package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/parse"
	"aquaflow-backend/internal/store"
)

// ErrNoActiveUnit is returned when an operation needs an active unit and none is selected.
var ErrNoActiveUnit = errors.New("no active unit")

// SnapshotReader is the part of the remote store the synchronizer reads from.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, unitID string) (store.Payload, bool, error)
}

// Subscription is an open push feed for one unit.
type Subscription interface {
	Close() error
}

// Feed delivers full-snapshot change payloads for a unit. onConnect is
// called after every successful connect, including reconnects; onError for
// every dropped connection or failed reconnect attempt.
type Feed interface {
	Subscribe(ctx context.Context, unitID string, onConnect func(), onChange func(store.Payload), onError func(error)) (Subscription, error)
}

// AlertDispatcher receives alerts derived from snapshot transitions. It must not block.
type AlertDispatcher interface {
	Dispatch(alert model.Alert) bool
}

// Service keeps one canonical snapshot of the active unit fresh from polling,
// the push feed or both.
type Service struct {
	cfg    config.SyncConfig
	store  SnapshotReader
	feed   Feed
	alerts AlertDispatcher
	now    func() time.Time

	state state

	suppressMu sync.Mutex
	suppressed map[string]time.Time

	runMu   sync.Mutex
	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a synchronizer. feed may be nil in poll mode and alerts
// may be nil when notifications are disabled.
func NewService(cfg config.SyncConfig, st SnapshotReader, feed Feed, alerts AlertDispatcher) *Service {
	return &Service{
		cfg:        cfg,
		store:      st,
		feed:       feed,
		alerts:     alerts,
		now:        time.Now,
		suppressed: make(map[string]time.Time),
	}
}

// Run starts the feeds for the active unit and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	log.Printf("Starting state synchronizer in %s mode...", s.cfg.Mode)

	s.runMu.Lock()
	s.rootCtx = ctx
	_, unitID := s.state.current()
	if unitID != "" {
		s.startLocked(unitID)
	}
	s.runMu.Unlock()

	<-ctx.Done()

	s.runMu.Lock()
	s.stopLocked()
	s.rootCtx = nil
	s.runMu.Unlock()
	s.wg.Wait()
	log.Println("State synchronizer shutting down.")
}

// Watch makes unitID the active unit. The old unit's feeds are stopped and
// the cached state is cleared before the new unit's feeds start. An empty id
// leaves no unit active.
func (s *Service) Watch(unitID string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stopLocked()
	if unitID == "" {
		s.state.reset("")
		log.Println("Synchronizer idle: no active unit.")
		return
	}
	if s.rootCtx == nil {
		// Not running yet; Run picks the unit up.
		s.state.reset(unitID)
		return
	}
	s.startLocked(unitID)
}

func (s *Service) startLocked(unitID string) {
	gen := s.state.reset(unitID)
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.cancel = cancel
	log.Printf("Synchronizing unit %s (generation %d)", unitID, gen)

	switch s.cfg.Mode {
	case config.FeedModePush:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.feed == nil {
				_ = s.fetch(ctx, gen, unitID)
			}
			s.subscribe(ctx, gen, unitID)
		}()
	case config.FeedModeHybrid:
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.pollLoop(ctx, gen, unitID)
		}()
		go func() {
			defer s.wg.Done()
			s.subscribe(ctx, gen, unitID)
		}()
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pollLoop(ctx, gen, unitID)
		}()
	}
}

func (s *Service) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) pollLoop(ctx context.Context, gen uint64, unitID string) {
	_ = s.fetch(ctx, gen, unitID)

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_ = s.fetch(ctx, gen, unitID)
			timer.Reset(s.cfg.PollInterval)
		}
	}
}

func (s *Service) subscribe(ctx context.Context, gen uint64, unitID string) {
	if s.feed == nil {
		log.Printf("No push feed configured; unit %s relies on polling.", unitID)
		return
	}
	// Every (re)connect runs a full fetch cycle: the status passes through
	// reconnecting and writes made while disconnected are picked up.
	onConnect := func() {
		_ = s.fetch(ctx, gen, unitID)
	}
	onChange := func(p store.Payload) {
		if s.apply(gen, unitID, p) {
			s.state.setStatus(gen, StatusConnected, nil)
		}
	}
	onError := func(err error) {
		log.Printf("Push feed for unit %s: %v", unitID, err)
		s.state.setStatus(gen, StatusError, err)
	}

	sub, err := s.feed.Subscribe(ctx, unitID, onConnect, onChange, onError)
	if err != nil {
		onError(fmt.Errorf("subscribe: %w", err))
		return
	}
	<-ctx.Done()
	if err := sub.Close(); err != nil {
		log.Printf("Error closing push feed for unit %s: %v", unitID, err)
	}
}

// fetch runs one cycle: reconnecting, read, then connected or error. A failed
// read keeps the last good snapshot.
func (s *Service) fetch(ctx context.Context, gen uint64, unitID string) error {
	if !s.state.setStatus(gen, StatusReconnecting, nil) {
		return nil
	}

	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	payload, found, err := s.store.ReadSnapshot(fetchCtx, unitID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Error fetching snapshot for unit %s: %v", unitID, err)
		s.state.setStatus(gen, StatusError, err)
		return err
	}
	if found {
		s.apply(gen, unitID, payload)
	}
	s.state.setStatus(gen, StatusConnected, nil)
	return nil
}

// apply is the single entry point for poll and push results. It reports
// whether the snapshot was replaced.
func (s *Service) apply(gen uint64, unitID string, payload store.Payload) bool {
	snap := Adapt(payload)
	if snap.UnitID != "" && !parse.SameUnit(snap.UnitID, unitID) {
		log.Printf("Dropping payload for unit %s while watching %s", snap.UnitID, unitID)
		return false
	}
	snap.UnitID = unitID

	if !snap.InsertedCoins.IsZero() && s.isSuppressed(unitID) {
		log.Printf("Holding back snapshot for unit %s during settlement suppression", unitID)
		return false
	}

	prev, ok := s.state.replace(gen, snap)
	if !ok {
		return false
	}
	if prev != nil && s.alerts != nil {
		for _, alert := range deriveAlerts(*prev, snap) {
			s.alerts.Dispatch(alert)
		}
	}
	return true
}

// Suppress holds back non-zero counter readings for unitID until the given
// time, so a just-settled unit does not flash its old counters.
func (s *Service) Suppress(unitID string, until time.Time) {
	s.suppressMu.Lock()
	defer s.suppressMu.Unlock()
	s.suppressed[parse.NormalizeUnitID(unitID)] = until
}

func (s *Service) isSuppressed(unitID string) bool {
	key := parse.NormalizeUnitID(unitID)
	s.suppressMu.Lock()
	defer s.suppressMu.Unlock()
	until, ok := s.suppressed[key]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.suppressed, key)
		return false
	}
	return true
}

// Refresh runs one fetch cycle for the active unit.
func (s *Service) Refresh(ctx context.Context) error {
	gen, unitID := s.state.current()
	if unitID == "" {
		return ErrNoActiveUnit
	}
	return s.fetch(ctx, gen, unitID)
}

// View returns a copy of the current state.
func (s *Service) View() View {
	return s.state.view()
}

// LiveVault returns the uncollected vault total of a unit. The active unit is
// served from the cache; other units are read from the store.
func (s *Service) LiveVault(ctx context.Context, unitID string) (int64, error) {
	v := s.state.view()
	if v.Snapshot != nil && parse.SameUnit(v.UnitID, unitID) {
		return v.Snapshot.VaultTotal(), nil
	}

	payload, found, err := s.store.ReadSnapshot(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("live vault for %s: %w", unitID, err)
	}
	if !found {
		return 0, nil
	}
	return Adapt(payload).VaultTotal(), nil
}
