package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inspection-service/internal/http/middleware"
	"inspection-service/internal/storage"
)

// ReadinessCheck reports whether backing services are reachable.
type ReadinessCheck func(ctx context.Context) error

func NewRouter(
	handler *Handler,
	authMiddleware gin.HandlerFunc,
	env string,
	ready ReadinessCheck,
	artifacts http.FileSystem,
	log zerolog.Logger,
) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if ready != nil {
			if err := ready(ctx); err != nil {
				log.Warn().Err(err).Msg("readiness check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if artifacts != nil {
		router.StaticFS("/"+storage.WebPrefix, artifacts)
	}

	handler.Register(router, authMiddleware)

	return router
}
