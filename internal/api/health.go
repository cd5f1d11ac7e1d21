// Package api provides HTTP handlers for the overlay service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/persist"
	"github.com/pwa-modeller/overlay/internal/ws"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	kv        persist.KV
	session   OverlaySession
	hub       *ws.Hub
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler with the given dependencies.
func NewHealthHandler(kv persist.KV, session OverlaySession, hub *ws.Hub, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		kv:        kv,
		session:   session,
		hub:       hub,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	ModelLoaded   bool    `json:"model_loaded"`
	Signature     string  `json:"signature,omitempty"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Signature:     h.session.Signature(),
		ModelLoaded:   h.session.Signature() != "",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.hub != nil {
		resp.WSClients = h.hub.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready — probes the persistence backend.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{"storage": "ok"}
	status := "ready"
	statusCode := http.StatusOK

	// A read of a never-written key exercises the backend without
	// side effects.
	if _, _, err := h.kv.Get("overlay:probe"); err != nil {
		h.log.WithError(err).Error("readiness: storage check failed")
		checks["storage"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readinessResponse{Status: status, Checks: checks})
}
