package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"classroom-occupancy-backend/config"
	"classroom-occupancy-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler, registry *prometheus.Registry) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	sensorAuth := mw.SensorAuth(cfg.Server.IoTAPIKey)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		iot := api.Group("/iot")
		{
			iot.POST("/sensors/data", sensorAuth, handler.PostSensorData)
			iot.POST("/sensors/bulk-data", sensorAuth, handler.PostBulkSensorData)

			iot.GET("/occupancy", caching, handler.GetOccupancy)
			iot.GET("/occupancy/:classroomId", handler.GetClassroomOccupancy)
			iot.GET("/occupancy/:classroomId/history", caching, handler.GetClassroomHistory)
		}

		api.POST("/notify/reservation", sensorAuth, handler.PostReservationNotify)
		api.GET("/ws/stats", handler.GetWSStats)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	r.GET(cfg.Realtime.Path, func(c *gin.Context) {
		handler.hub.HandleWS(c.Writer, c.Request)
	})

	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return r
}
