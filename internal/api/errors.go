package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"aquaflow-backend/internal/history"
	"aquaflow-backend/internal/registry"
	"aquaflow-backend/internal/settlement"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeUnitNotFound         = "unit_not_found"
	CodeWriteFailed          = "write_failed"
	CodeOverwriteDetected    = "overwrite_detected"
	CodeSettlementInProgress = "settlement_in_progress"
	CodeNothingToCollect     = "nothing_to_collect"
	CodeStoreUnreachable     = "store_unreachable"
	CodeUnauthenticated      = "unauthenticated"
	CodeConfirmationRequired = "confirmation_required"
	CodeNoActiveUnit         = "no_active_unit"
	CodeInternal             = "internal_error"
)

// overwriteWarning is shown to the operator when the device wrote over a reset.
const overwriteWarning = "The unit overwrote its counters during settlement. Nothing was recorded; collect again once the unit is idle."

// writeError maps a service error to its status code and JSON body.
func writeError(c *gin.Context, err error) {
	var (
		resErr   *settlement.ResolutionError
		wErr     *settlement.WriteError
		owErr    *settlement.OverwriteDetectedError
		claimErr *registry.ClaimError
	)

	switch {
	case errors.As(err, &owErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeOverwriteDetected, "warning": overwriteWarning})
	case errors.As(err, &wErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeWriteFailed})
	case errors.Is(err, settlement.ErrSettlementInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeSettlementInProgress})
	case errors.Is(err, settlement.ErrNothingToCollect):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeNothingToCollect})
	case errors.As(err, &resErr), errors.Is(err, registry.ErrUnknownUnit), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": CodeUnitNotFound})
	case errors.As(err, &claimErr):
		status := http.StatusBadRequest
		if claimErr.Reason == registry.ReasonUnauthenticated {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": string(claimErr.Reason)})
	case errors.Is(err, registry.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": CodeUnauthenticated})
	case errors.Is(err, registry.ErrConfirmationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeConfirmationRequired})
	case errors.Is(err, syncer.ErrNoActiveUnit):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeNoActiveUnit})
	case errors.Is(err, settlement.ErrInvalidCounts), errors.Is(err, history.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInvalidRequest})
	case store.IsConnectivity(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": CodeStoreUnreachable})
	default:
		log.Printf("Unhandled API error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": CodeInternal})
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": CodeInvalidRequest})
}
