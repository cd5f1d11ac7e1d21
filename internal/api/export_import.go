package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/codec"
	"github.com/pwa-modeller/overlay/internal/service"
)

// FileHandler serves overlay import/export endpoints.
type FileHandler struct {
	session OverlaySession
	log     *logrus.Logger
}

// NewFileHandler creates a FileHandler.
func NewFileHandler(session OverlaySession, log *logrus.Logger) *FileHandler {
	return &FileHandler{session: session, log: log}
}

// Import handles POST /api/v1/import/:format. The body is the raw
// overlay file; ?strategy=merge|replace and ?dry_run=true are query
// parameters.
func (h *FileHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "reading request body failed")
		return
	}

	strategy := c.DefaultQuery("strategy", codec.StrategyMerge)
	if strategy != codec.StrategyMerge && strategy != codec.StrategyReplace {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "strategy must be merge or replace")
		return
	}

	result, err := h.session.Import(c.Param("format"), data, codec.ImportOptions{
		Strategy: strategy,
		DryRun:   c.Query("dry_run") == "true",
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownFormat) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// Export handles GET /api/v1/export/:format. For the survey format
// ?tags=a,b,c selects the tag columns.
func (h *FileHandler) Export(c *gin.Context) {
	var tagKeys []string
	if raw := c.Query("tags"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				tagKeys = append(tagKeys, key)
			}
		}
	}

	data, contentType, err := h.session.Export(c.Param("format"), tagKeys)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownFormat):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, service.ErrNoModel):
			respondError(c, http.StatusConflict, ErrCodeNoModel, "survey export needs a loaded model")
		default:
			h.log.WithError(err).Error("exporting overlay")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

// Status handles GET /api/v1/export/status.
func (h *FileHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}
