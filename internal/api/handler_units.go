package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type unitResponse struct {
	UnitID   string `json:"unitId"`
	IsActive bool   `json:"isActive"`
}

// GetUnits handles GET /api/units.
func (h *Handler) GetUnits(c *gin.Context) {
	units, err := h.registry.ListUnits(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	active, _ := h.registry.Active()
	resp := make([]unitResponse, len(units))
	for i, id := range units {
		resp[i] = unitResponse{UnitID: id, IsActive: id == active}
	}
	c.JSON(http.StatusOK, gin.H{"units": resp, "active": active})
}

type claimUnitRequest struct {
	ClaimCode string `json:"claim_code" binding:"required"`
}

// PostUnit handles POST /api/units: claims a unit with an activation code.
func (h *Handler) PostUnit(c *gin.Context) {
	var req claimUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	unitID, err := h.registry.AddUnit(c.Request.Context(), req.ClaimCode)
	if err != nil {
		writeError(c, err)
		return
	}
	active, _ := h.registry.Active()
	c.JSON(http.StatusCreated, unitResponse{UnitID: unitID, IsActive: unitID == active})
}

type setActiveRequest struct {
	UnitID string `json:"unit_id" binding:"required"`
}

// PutActiveUnit handles PUT /api/units/active.
func (h *Handler) PutActiveUnit(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	unitID, err := h.registry.SetActive(c.Request.Context(), req.UnitID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, unitResponse{UnitID: unitID, IsActive: true})
}

// DeleteUnit handles DELETE /api/units/:unit_id?confirm=true.
func (h *Handler) DeleteUnit(c *gin.Context) {
	unitID := h.unitParam(c.Param("unit_id"))
	confirmed := c.Query("confirm") == "true"

	if err := h.registry.RemoveUnit(c.Request.Context(), unitID, confirmed); err != nil {
		writeError(c, err)
		return
	}
	if h.cache != nil {
		h.cache.InvalidateUnit(unitID)
	}
	c.Status(http.StatusNoContent)
}
