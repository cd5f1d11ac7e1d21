package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwa-modeller/overlay/internal/extref"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
	"github.com/pwa-modeller/overlay/internal/service"
)

// EntryHandler serves overlay entry CRUD endpoints.
type EntryHandler struct {
	session OverlaySession
	log     *logrus.Logger
}

// NewEntryHandler creates an EntryHandler.
func NewEntryHandler(session OverlaySession, log *logrus.Logger) *EntryHandler {
	return &EntryHandler{session: session, log: log}
}

// upsertEntryRequest is the JSON body for POST /entries. Refs are
// accepted in packed scheme form and normalized server-side.
type upsertEntryRequest struct {
	EntryID string         `json:"entryId,omitempty"`
	Kind    string         `json:"kind" binding:"required"`
	Refs    []extref.Ref   `json:"refs" binding:"required"`
	Tags    overlay.Tags   `json:"tags,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// List handles GET /api/v1/entries. An optional ?filter= expression
// narrows the result.
func (h *EntryHandler) List(c *gin.Context) {
	entries, err := h.session.ListEntries(c.Query("filter"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Get handles GET /api/v1/entries/:id.
func (h *EntryHandler) Get(c *gin.Context) {
	entry, ok := h.session.GetEntry(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// Upsert handles POST /api/v1/entries.
func (h *EntryHandler) Upsert(c *gin.Context) {
	var req upsertEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	entry, err := h.session.UpsertEntry(overlay.UpsertInput{
		EntryID: req.EntryID,
		Kind:    model.Kind(req.Kind),
		Refs:    req.Refs,
		Tags:    req.Tags,
		Meta:    req.Meta,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// Delete handles DELETE /api/v1/entries/:id.
func (h *EntryHandler) Delete(c *gin.Context) {
	if err := h.session.DeleteEntry(c.Param("id")); err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// SetTags handles PUT /api/v1/entries/:id/tags, replacing the whole map.
func (h *EntryHandler) SetTags(c *gin.Context) {
	var tags overlay.Tags
	if err := c.ShouldBindJSON(&tags); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if err := h.session.SetTags(c.Param("id"), tags); err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}

	entry, _ := h.session.GetEntry(c.Param("id"))
	c.JSON(http.StatusOK, entry)
}

// SetTag handles PUT /api/v1/entries/:id/tags/:key. The body is the
// raw JSON tag value.
func (h *EntryHandler) SetTag(c *gin.Context) {
	var value any
	if err := c.ShouldBindJSON(&value); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "tag value must be valid JSON")
		return
	}

	if err := h.session.SetTag(c.Param("id"), c.Param("key"), value); err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}

	entry, _ := h.session.GetEntry(c.Param("id"))
	c.JSON(http.StatusOK, entry)
}

// RemoveTag handles DELETE /api/v1/entries/:id/tags/:key.
func (h *EntryHandler) RemoveTag(c *gin.Context) {
	if err := h.session.RemoveTag(c.Param("id"), c.Param("key")); err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}

	entry, _ := h.session.GetEntry(c.Param("id"))
	c.JSON(http.StatusOK, entry)
}

// rebindRequest is the JSON body for POST /entries/:id/rebind.
type rebindRequest struct {
	Kind             string `json:"kind" binding:"required"`
	TargetID         string `json:"targetId" binding:"required"`
	PreferUniqueRefs bool   `json:"preferUniqueRefs"`
}

// Rebind handles POST /api/v1/entries/:id/rebind.
func (h *EntryHandler) Rebind(c *gin.Context) {
	var req rebindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	kind := model.Kind(req.Kind)
	if !kind.Valid() {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "kind must be element or relationship")
		return
	}

	res, err := h.session.Rebind(c.Param("id"), model.TargetRef{Kind: kind, ID: req.TargetID}, req.PreferUniqueRefs)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoModel):
			respondError(c, http.StatusConflict, ErrCodeNoModel, "no model loaded")
		case errors.Is(err, overlay.ErrEntryNotFound), errors.Is(err, overlay.ErrTargetNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, overlay.ErrTargetHasNoExternal):
			respondError(c, http.StatusUnprocessableEntity, ErrCodeValidationError, err.Error())
		default:
			h.log.WithError(err).Error("rebinding entry")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, res)
}
