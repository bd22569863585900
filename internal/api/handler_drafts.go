package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type draftRequest struct {
	Value string `json:"value"`
}

// GetDraft returns a saved form field value.
func (h *Handler) GetDraft(c *gin.Context) {
	v, err := h.drafts.Load(c.Request.Context(), c.Param("form"), c.Param("field"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": v})
}

// PutDraft saves a form field value.
func (h *Handler) PutDraft(c *gin.Context) {
	var req draftRequest
	if !bind(c, &req) {
		return
	}
	if err := h.drafts.Save(c.Request.Context(), c.Param("form"), c.Param("field"), req.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteDraft clears a form field value.
func (h *Handler) DeleteDraft(c *gin.Context) {
	if err := h.drafts.Clear(c.Request.Context(), c.Param("form"), c.Param("field")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
