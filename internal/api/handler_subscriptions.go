package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"community-portal/internal/model"
)

type subscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser for web push, replacing its keys if
// the endpoint is already known.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req subscriptionRequest
	if !bind(c, &req) {
		return
	}
	sub := model.PushSubscription{Endpoint: req.Endpoint, P256DH: req.P256DH, Auth: req.Auth}
	if err := h.store.UpsertSubscription(c.Request.Context(), sub); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type endpointRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription stops web push to a browser.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req endpointRequest
	if !bind(c, &req) {
		return
	}
	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding it. Push
// endpoints are stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

// GetSubscription reports whether a browser endpoint is subscribed.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}
	sub, err := h.store.GetSubscription(c.Request.Context(), endpoint)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": sub.Endpoint, "created_at": sub.CreatedAt})
}

type deviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// PutDevice registers an FCM token for one of the member's devices.
func (h *Handler) PutDevice(c *gin.Context) {
	var req deviceRequest
	if !bind(c, &req) {
		return
	}
	tok := model.DeviceToken{Token: req.Token, Platform: req.Platform}
	if err := h.store.UpsertDeviceToken(c.Request.Context(), tok); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteDevice forgets an FCM token. Only the token field is read.
func (h *Handler) DeleteDevice(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.store.DeleteDeviceTokens(c.Request.Context(), req.Token); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetVAPIDPublicKey returns the key browsers need to subscribe.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "web push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
