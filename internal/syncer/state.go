package syncer

import (
	"sync"

	"aquaflow-backend/internal/model"
)

// SyncState reports how fresh the cached snapshot is.
type SyncState string

const (
	StatusConnected    SyncState = "connected"
	StatusReconnecting SyncState = "reconnecting"
	StatusError        SyncState = "error"
)

// View is a read-only copy of the synchronizer's state.
type View struct {
	UnitID    string              `json:"unitId"`
	Status    SyncState           `json:"status"`
	Snapshot  *model.UnitSnapshot `json:"snapshot"`
	LastError string              `json:"lastError,omitempty"`
}

// state is the single owned container for the active unit. Every write
// carries the generation it was started under; writes from an older
// generation are dropped so a unit switch never leaks stale data.
type state struct {
	mu      sync.RWMutex
	gen     uint64
	unitID  string
	snap    *model.UnitSnapshot
	status  SyncState
	lastErr string
}

func (s *state) reset(unitID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.unitID = unitID
	s.snap = nil
	s.status = StatusReconnecting
	s.lastErr = ""
	return s.gen
}

func (s *state) current() (uint64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, s.unitID
}

func (s *state) setStatus(gen uint64, status SyncState, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.status = status
	if err != nil {
		s.lastErr = err.Error()
	} else if status == StatusConnected {
		s.lastErr = ""
	}
	return true
}

// replace swaps in a whole new snapshot and returns the previous one.
func (s *state) replace(gen uint64, snap model.UnitSnapshot) (*model.UnitSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, false
	}
	prev := s.snap
	s.snap = &snap
	return prev, true
}

func (s *state) view() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{UnitID: s.unitID, Status: s.status, LastError: s.lastErr}
	if s.snap != nil {
		c := *s.snap
		v.Snapshot = &c
	}
	return v
}
