package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bustrack/internal/auth"
	"bustrack/internal/domain"
	"bustrack/internal/handler"
	"bustrack/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TrackingHandler  *handler.TrackingHandler
	FleetHandler     *handler.FleetHandler
	SubscribeHandler *handler.SubscribeHandler
	Verifier         *auth.Verifier
	RedisClient      *redis.Client
	NewRelicApp      *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes; everything past this point needs a verified identity.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Verifier))
	{
		// Driver-side session operations.
		tracking := v1.Group("/tracking")
		{
			driverOnly := middleware.RequireRole(domain.RoleDriver)
			tracking.POST("/:busId/start", driverOnly, deps.TrackingHandler.StartTracking)
			tracking.POST("/:busId/location", driverOnly, deps.TrackingHandler.UpdateLocation)
			tracking.POST("/:busId/end", driverOnly, deps.TrackingHandler.EndTracking)
			tracking.POST("/:busId/emergency", driverOnly, deps.TrackingHandler.ReportEmergency)
			tracking.PATCH("/:busId/connection", driverOnly, deps.TrackingHandler.UpdateConnectionInfo)

			// Read side: any authenticated role.
			tracking.GET("/:busId", deps.TrackingHandler.GetActiveSession)
			tracking.GET("/:busId/history", deps.TrackingHandler.GetSessionHistory)
		}

		// Fleet view for administrators.
		buses := v1.Group("/buses")
		buses.Use(middleware.RequireRole(domain.RoleAdmin))
		{
			buses.GET("/nearby", deps.FleetHandler.NearbyBuses)
			buses.GET("/tracked", deps.FleetHandler.TrackedBuses)
		}

		// Live event stream.
		v1.GET("/subscribe", deps.SubscribeHandler.Subscribe)
	}

	return router
}
