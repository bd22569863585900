package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetChat returns the chat view.
func (h *Handler) GetChat(c *gin.Context) {
	c.JSON(http.StatusOK, h.chat.View())
}

type putActiveChannelRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

// PutActiveChannel switches the active channel.
func (h *Handler) PutActiveChannel(c *gin.Context) {
	var req putActiveChannelRequest
	if !bind(c, &req) {
		return
	}
	if err := h.chat.Switch(c.Request.Context(), req.ChannelID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.chat.View())
}

type postMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// PostMessage sends a message to the active channel.
func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if !bind(c, &req) {
		return
	}
	msg, err := h.chat.Send(c.Request.Context(), req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
