package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"aquaflow-backend/internal/history"
	"aquaflow-backend/internal/mw"
	"aquaflow-backend/internal/registry"
	"aquaflow-backend/internal/settlement"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

// Deps are the services the API exposes.
type Deps struct {
	DB         *gorm.DB
	Store      store.Store
	Sync       *syncer.Service
	Registry   *registry.Registry
	Archive    *history.Archive
	Settlement *settlement.Coordinator
	WebPush    *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db         *gorm.DB
	store      store.Store
	sync       *syncer.Service
	registry   *registry.Registry
	archive    *history.Archive
	settlement *settlement.Coordinator
	cache      *mw.ResponseCache
	webpush    *webpush.Options
}

// NewHandler creates a new API handler. cache may be nil.
func NewHandler(deps Deps, cache *mw.ResponseCache) *Handler {
	return &Handler{
		db:         deps.DB,
		store:      deps.Store,
		sync:       deps.Sync,
		registry:   deps.Registry,
		archive:    deps.Archive,
		settlement: deps.Settlement,
		cache:      cache,
		webpush:    deps.WebPush,
	}
}

// unitParam returns the :unit_id path parameter in the registry's form when
// the unit is registered, and as given otherwise.
func (h *Handler) unitParam(raw string) string {
	if h.registry != nil {
		if id, ok := h.registry.Lookup(raw); ok {
			return id
		}
	}
	return raw
}
