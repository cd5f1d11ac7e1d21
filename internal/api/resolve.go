package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/service"
)

// ResolveHandler serves overlay resolution and effective-tag endpoints.
type ResolveHandler struct {
	session OverlaySession
	log     *logrus.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(session OverlaySession, log *logrus.Logger) *ResolveHandler {
	return &ResolveHandler{session: session, log: log}
}

// Resolve handles GET /api/v1/resolve.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	res, err := h.session.Resolve()
	if err != nil {
		respondError(c, http.StatusConflict, ErrCodeNoModel, "no model loaded")
		return
	}

	c.JSON(http.StatusOK, res)
}

// Effective handles GET /api/v1/effective/:kind/:id.
func (h *ResolveHandler) Effective(c *gin.Context) {
	kind := model.Kind(c.Param("kind"))
	if !kind.Valid() {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "kind must be element or relationship")
		return
	}

	eff, err := h.session.Effective(model.TargetRef{Kind: kind, ID: c.Param("id")})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoModel):
			respondError(c, http.StatusConflict, ErrCodeNoModel, "no model loaded")
		case errors.Is(err, service.ErrTargetNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "model target not found")
		default:
			h.log.WithError(err).Error("computing effective tags")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, eff)
}
