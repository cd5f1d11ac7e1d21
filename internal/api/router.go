package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/middleware"
	"github.com/pwa-modeller/overlay/internal/persist"
	"github.com/pwa-modeller/overlay/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log          *logrus.Logger
	Session      OverlaySession
	Hub          *ws.Hub
	KV           persist.KV
	CORSOrigins  []string
	Version      string
	MaxBodyBytes int64
}

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID())
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.Prometheus())

	// Metrics endpoint, outside the API group like health.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.KV, deps.Session, deps.Hub, log, deps.Version)
	models := NewModelHandler(deps.Session, log)
	entries := NewEntryHandler(deps.Session, log)
	resolve := NewResolveHandler(deps.Session, log)
	files := NewFileHandler(deps.Session, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// Model.
	api.POST("/model", models.Load)
	api.GET("/model", models.Get)
	api.GET("/model/collisions", models.Collisions)

	// Overlay entries.
	api.GET("/entries", entries.List)
	api.POST("/entries", entries.Upsert)
	api.GET("/entries/:id", entries.Get)
	api.DELETE("/entries/:id", entries.Delete)
	api.PUT("/entries/:id/tags", entries.SetTags)
	api.PUT("/entries/:id/tags/:key", entries.SetTag)
	api.DELETE("/entries/:id/tags/:key", entries.RemoveTag)
	api.POST("/entries/:id/rebind", entries.Rebind)

	// Resolution and effective views.
	api.GET("/resolve", resolve.Resolve)
	api.GET("/effective/:kind/:id", resolve.Effective)

	// Overlay file exchange.
	api.POST("/import/:format", files.Import)
	api.GET("/export/:format", files.Export)
	api.GET("/export/status", files.Status)

	// WebSocket change feed.
	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
