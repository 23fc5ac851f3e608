package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"courier/internal/domain"
	"courier/internal/handler"
	"courier/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	LocationHandler *handler.LocationHandler
	DriverHandler   *handler.DriverHandler
	DeliveryHandler *handler.DeliveryHandler
	AuthHandler     *handler.AuthHandler
	Tokens          middleware.TokenParser
	Responses       middleware.ResponseStore // nil disables idempotent replay
	CORSOrigins     []string
	Logger          logrus.FieldLogger
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.CORSOrigins))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", deps.AuthHandler.Register)
			auth.POST("/login", deps.AuthHandler.Login)
		}

		// Everything below needs a token; Idempotency must follow RequireAuth
		// because replay keys are scoped to the caller.
		authed := v1.Group("", middleware.RequireAuth(deps.Tokens), middleware.Idempotency(deps.Responses))

		location := authed.Group("/location")
		{
			location.POST("/update", middleware.RequireRole(domain.RoleDriver), deps.LocationHandler.Update)
			location.GET("/driver/:driverId", deps.LocationHandler.GetDriver)
			location.GET("/history/:driverId", deps.LocationHandler.History)
			location.GET("/nearby", deps.LocationHandler.Nearby)
			location.GET("/route", deps.LocationHandler.Route)
		}

		drivers := authed.Group("/drivers")
		{
			drivers.PATCH("/me/status", middleware.RequireRole(domain.RoleDriver), deps.DriverHandler.UpdateMyStatus)
		}

		deliveries := authed.Group("/deliveries")
		{
			deliveries.POST("", middleware.RequireRole(domain.RoleAdmin), deps.DeliveryHandler.Create)
			deliveries.GET("/:id", deps.DeliveryHandler.Get)
			deliveries.PATCH("/:id/assign", middleware.RequireRole(domain.RoleAdmin), deps.DeliveryHandler.Assign)
			deliveries.PATCH("/:id/status", middleware.RequireRole(domain.RoleDriver, domain.RoleAdmin), deps.DeliveryHandler.UpdateStatus)
			deliveries.GET("/:id/path", deps.DeliveryHandler.Path)
		}
	}

	return router
}
