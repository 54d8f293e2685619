package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/syncer"
)

type hopperLevel struct {
	Level model.Level `json:"level"`
	Label string      `json:"label"`
}

type levelsResponse struct {
	Water    model.Level `json:"water"`
	ChangeP1 hopperLevel `json:"changeP1"`
	ChangeP5 hopperLevel `json:"changeP5"`
}

type stateResponse struct {
	syncer.View
	VaultTotal int64           `json:"vaultTotal"`
	Levels     *levelsResponse `json:"levels,omitempty"`
}

func newStateResponse(v syncer.View) stateResponse {
	resp := stateResponse{View: v}
	if v.Snapshot == nil {
		return resp
	}
	snap := v.Snapshot
	resp.VaultTotal = snap.VaultTotal()

	p1Level, p1Label := model.CoinStatus(snap.ChangeBank.P1)
	p5Level, p5Label := model.CoinStatus(snap.ChangeBank.P5)
	resp.Levels = &levelsResponse{
		Water:    model.WaterStatus(snap.WaterLevelPercent),
		ChangeP1: hopperLevel{Level: p1Level, Label: p1Label},
		ChangeP5: hopperLevel{Level: p5Level, Label: p5Label},
	}
	return resp
}

// GetHealth reports that the daemon is serving.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetState handles GET /api/state: the active unit's cached snapshot.
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, newStateResponse(h.sync.View()))
}

// PostRefresh handles POST /api/state/refresh: one immediate fetch cycle.
func (h *Handler) PostRefresh(c *gin.Context) {
	if err := h.sync.Refresh(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStateResponse(h.sync.View()))
}
