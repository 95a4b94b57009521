package handler

import (
	"net/http"
	"slices"

	"coursehub/internal/microservices/http-api/middleware"
	"coursehub/internal/microservices/http-api/service"
	"coursehub/internal/microservices/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	ServiceName string
	CORSOrigins []string

	Verifier   *middleware.TokenVerifier
	Users      middleware.UserMirror
	Progress   service.ProgressService
	Aggregator service.Aggregator
	Readiness  map[string]ReadinessCheck
	Logger     *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// ===============
	// || Public    ||
	// ===============
	NewHealthHandler(cfg.Readiness).RegisterRoutes(r)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	// ===============
	// || Protected ||
	// ===============
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Verifier, cfg.Users, cfg.Logger))

	progress := NewProgressHandler(cfg.Progress)
	progress.RegisterRoutes(api)
	progress.RegisterAdminRoutes(api.Group("/admin", middleware.RequireAdmin()))
	NewCourseProgressHandler(cfg.Aggregator).RegisterRoutes(api)
	api.GET("/playback/ws", websocket.PlaybackHandler(cfg.Progress, cfg.CORSOrigins, cfg.Logger))

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
