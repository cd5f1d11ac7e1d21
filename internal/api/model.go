package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ModelHandler serves primary-model endpoints.
type ModelHandler struct {
	session OverlaySession
	log     *logrus.Logger
}

// NewModelHandler creates a ModelHandler.
func NewModelHandler(session OverlaySession, log *logrus.Logger) *ModelHandler {
	return &ModelHandler{session: session, log: log}
}

// Load handles POST /api/v1/model. The body is the model JSON document.
func (h *ModelHandler) Load(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "reading request body failed")
		return
	}
	if len(data) == 0 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "empty model document")
		return
	}

	info, err := h.session.LoadModel(data)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	c.JSON(http.StatusOK, info)
}

// Get handles GET /api/v1/model.
func (h *ModelHandler) Get(c *gin.Context) {
	info := h.session.Info()
	if info == nil {
		respondError(c, http.StatusNotFound, ErrCodeNoModel, "no model loaded")
		return
	}

	c.JSON(http.StatusOK, info)
}

// Collisions handles GET /api/v1/model/collisions.
func (h *ModelHandler) Collisions(c *gin.Context) {
	collisions, err := h.session.Collisions()
	if err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNoModel, "no model loaded")
		return
	}

	c.JSON(http.StatusOK, gin.H{"collisions": collisions})
}
