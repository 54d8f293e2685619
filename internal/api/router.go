package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, deps Deps) *gin.Engine {
	r := gin.Default()

	// Initialize middleware
	rateLimiter := mw.RateLimiter(mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))
	responseCache := mw.NewResponseCache(cfg.CacheTTL)
	caching := responseCache.Middleware()

	handler := NewHandler(deps, responseCache)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)

		api.GET("/state", handler.GetState)
		api.POST("/state/refresh", handler.PostRefresh)

		api.GET("/units", handler.GetUnits)
		api.POST("/units", handler.PostUnit)
		api.PUT("/units/active", handler.PutActiveUnit)
		api.DELETE("/units/:unit_id", handler.DeleteUnit)

		api.GET("/units/:unit_id/history", caching, handler.GetHistory)
		api.GET("/units/:unit_id/summary", caching, handler.GetSummary)
		api.POST("/units/:unit_id/settlement", handler.PostSettlement)
		api.POST("/units/:unit_id/refill", handler.PostRefill)

		api.GET("/settlements/pending", handler.GetPendingSettlements)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
