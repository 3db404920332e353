package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-bridge-backend/config"
	"parking-bridge-backend/internal/mw"
)

// NewRouter creates and configures the bridge's local HTTP router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	// The availability aggregate is cheap to cache for a few seconds; the
	// gate re-fetches on submission anyway.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Local diagnostics: process state, not the data store.
		api.GET("/sensor", handler.GetLatestReadings)
		api.GET("/refresh-mapping", handler.RefreshMapping)

		// Reservation flow against the data store.
		api.GET("/availability", caching, handler.GetAvailability)
		api.POST("/reservation", handler.PostReservation)

		// Capacity-reopened push subscriptions.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
