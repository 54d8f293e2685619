package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHistory handles GET /api/units/:unit_id/history.
func (h *Handler) GetHistory(c *gin.Context) {
	unitID := h.unitParam(c.Param("unit_id"))

	records, err := h.archive.List(c.Request.Context(), unitID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unitId": unitID, "records": records})
}

// GetSummary handles GET /api/units/:unit_id/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	unitID := h.unitParam(c.Param("unit_id"))

	summary, err := h.archive.Summary(c.Request.Context(), unitID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
