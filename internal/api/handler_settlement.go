package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/parse"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

// PostSettlement handles POST /api/units/:unit_id/settlement. The collected
// counts are the ones the operator is looking at: the cached snapshot when it
// is the active unit's and in sync, a fresh store read otherwise.
func (h *Handler) PostSettlement(c *gin.Context) {
	ctx := c.Request.Context()
	requested := c.Param("unit_id")

	collected, err := h.captureCounts(ctx, requested)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.settlement.Settle(ctx, requested, collected)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateUnit(res.UnitID)
	}
	if v := h.sync.View(); parse.SameUnit(v.UnitID, res.UnitID) {
		if err := h.sync.Refresh(ctx); err != nil {
			log.Printf("Refresh after settlement of %s failed: %v", res.UnitID, err)
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) captureCounts(ctx context.Context, unitID string) (model.CoinCounts, error) {
	v := h.sync.View()
	if v.Snapshot != nil && v.Status == syncer.StatusConnected && parse.SameUnit(v.UnitID, unitID) {
		return v.Snapshot.InsertedCoins, nil
	}

	ids, err := h.store.ListUnitIDs(ctx)
	if err != nil {
		return model.CoinCounts{}, err
	}
	for _, id := range ids {
		if !parse.SameUnit(id, unitID) {
			continue
		}
		payload, found, err := h.store.ReadSnapshot(ctx, id)
		if err != nil {
			return model.CoinCounts{}, err
		}
		if found {
			return syncer.Adapt(payload).InsertedCoins, nil
		}
	}
	// Unknown units fail in the coordinator's resolution step.
	return model.CoinCounts{}, nil
}

// GetPendingSettlements handles GET /api/settlements/pending.
func (h *Handler) GetPendingSettlements(c *gin.Context) {
	intents, err := h.settlement.Pending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if intents == nil {
		intents = []model.SettlementIntent{}
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents})
}

type refillRequest struct {
	Denomination store.Denomination `json:"denomination" binding:"required,oneof=P1 P5"`
	Amount       int64              `json:"amount" binding:"required,gt=0"`
}

// PostRefill handles POST /api/units/:unit_id/refill: adds coins to a change hopper.
func (h *Handler) PostRefill(c *gin.Context) {
	var req refillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	ctx := c.Request.Context()
	unitID := h.unitParam(c.Param("unit_id"))

	if err := h.store.RefillChangeBank(ctx, unitID, req.Denomination, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	log.Printf("Refilled %s hopper of %s with %d coins", req.Denomination, unitID, req.Amount)

	if v := h.sync.View(); parse.SameUnit(v.UnitID, unitID) {
		if err := h.sync.Refresh(ctx); err != nil {
			log.Printf("Refresh after refill of %s failed: %v", unitID, err)
		}
	}
	c.Status(http.StatusNoContent)
}
