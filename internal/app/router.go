package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/handler"
	"fleetops/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler         *handler.TripHandler
	EventHandler        *handler.EventHandler
	NotificationHandler *handler.NotificationHandler
	ChatHandler         *handler.ChatHandler
	HealthHandler       *handler.HealthHandler
	Authenticator       *middleware.Authenticator
	RedisClient         redis.Cmdable
	NewRelicApp         *newrelic.Application
	Logger              logrus.FieldLogger
	CORSOrigins         []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.CORSOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", deps.HealthHandler.Health)

	manager := middleware.RequireRole(domain.RoleFleetManager)

	// API v1 routes. Idempotency keys are scoped per user, so the middleware
	// runs after authentication.
	v1 := router.Group("/v1")
	v1.Use(deps.Authenticator.RequireAuth())
	if deps.NewRelicApp != nil {
		v1.Use(middleware.NewRelicAttributes())
	}
	if deps.RedisClient != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	}
	{
		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.GET("", deps.TripHandler.ListTrips)
			trips.GET("/overview", deps.TripHandler.Overview)
			trips.POST("", manager, deps.TripHandler.CreateTrip)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.PATCH("/:id", deps.TripHandler.UpdateTrip)
			trips.DELETE("/:id", manager, deps.TripHandler.DeleteTrip)
			trips.POST("/:id/assign", manager, deps.TripHandler.AssignTrip)
			trips.POST("/:id/inspections/pre", deps.TripHandler.CompletePreTripInspection)
			trips.POST("/:id/inspections/post", deps.TripHandler.CompletePostTripInspection)
			trips.POST("/:id/start", deps.TripHandler.StartTrip)
			trips.POST("/:id/complete", deps.TripHandler.CompleteTrip)
			trips.POST("/:id/location", deps.EventHandler.ReportLocation)

			events := trips.Group("/:id/events")
			{
				events.POST("/vehicle-issue", deps.EventHandler.VehicleIssue)
				events.POST("/inspection-issue", deps.EventHandler.InspectionIssue)
				events.POST("/delay", deps.EventHandler.Delay)
				events.POST("/fuel-bill", deps.EventHandler.FuelBill)
				events.POST("/issue-report", deps.EventHandler.IssueReport)
				events.POST("/emergency", deps.EventHandler.Emergency)
				events.POST("/maintenance", deps.EventHandler.Maintenance)
			}
		}

		// Notification routes.
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", deps.NotificationHandler.ListNotifications)
			notifications.GET("/unread-count", deps.NotificationHandler.UnreadCount)
			notifications.POST("/read-all", deps.NotificationHandler.MarkAllRead)
			notifications.POST("/:id/read", deps.NotificationHandler.MarkRead)
		}

		// Chat routes.
		chat := v1.Group("/chat/messages")
		{
			chat.POST("", deps.ChatHandler.SendMessage)
			chat.GET("", deps.ChatHandler.ListMessages)
			chat.POST("/:id/read", deps.ChatHandler.MarkRead)
			chat.DELETE("/:id", deps.ChatHandler.DeleteMessage)
		}
	}

	return router
}
