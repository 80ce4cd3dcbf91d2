package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/handlers"
	"github.com/hackcrew/hackathon-platform/internal/metrics"
	"github.com/hackcrew/hackathon-platform/internal/middleware"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/services"
)

// Deps are the services the router exposes.
type Deps struct {
	Store      *repository.Store
	Auth       *services.AuthService
	Hackathons *services.HackathonService
	Lifecycle  *services.LifecycleService
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.Logger, time.Second))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		if err := d.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "degraded",
				"db_connected": false,
				"error":        err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"db_connected": true,
		})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	adminHandler := handlers.NewAdminHandler(d.Hackathons, d.Lifecycle)
	operationHandler := handlers.NewOperationHandler(d.Store, d.Lifecycle)

	// Admin routes
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(d.Auth), middleware.RequireAdmin())
	{
		admin.POST("/users", adminHandler.CreateUser)

		hackathons := admin.Group("/hackathons")
		{
			hackathons.POST("", adminHandler.CreateHackathon)
			hackathons.POST("/sync-statuses", adminHandler.SyncStatuses)
			hackathons.GET("/:id", adminHandler.GetHackathon)
			hackathons.GET("/:id/status", adminHandler.GetStatus)
			hackathons.POST("/:id/participants", adminHandler.RegisterParticipant)
			hackathons.POST("/:id/form-teams", adminHandler.FormTeams)
			hackathons.POST("/:id/complete", adminHandler.CompleteHackathon)
			hackathons.POST("/:id/cancel", adminHandler.CancelHackathon)
		}

		operations := admin.Group("/operations")
		{
			operations.GET("", operationHandler.ListOperations)
			operations.GET("/:id", operationHandler.GetOperation)
			operations.POST("/:id/retry", operationHandler.RetryOperation)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "code": apperrors.CodeNotFound, "kind": apperrors.KindBusiness})
	})

	return router
}
