// webhooks.go handles webhook management HTTP endpoints.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/middleware"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
	webhookservice "github.com/Shimizu-Technology/pdf2xml-api/internal/services/webhook"
)

// CreateWebhook registers a new webhook endpoint.
// POST /api/v1/webhooks
func (h *Handler) CreateWebhook(c *gin.Context) {
	var req models.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "URL and at least one event are required")
		return
	}

	for _, event := range req.Events {
		if !models.ValidEvents[event] {
			respondError(c, http.StatusBadRequest, "invalid_event", "Invalid event type: "+event)
			return
		}
	}

	secret, err := webhookservice.GenerateSecret()
	if err != nil {
		h.Logger.WithError(err).Error("❌ Failed to generate webhook secret")
		respondError(c, http.StatusInternalServerError, "generation_error", "Failed to generate webhook secret")
		return
	}

	wh := &models.Webhook{
		UserID: middleware.GetUserID(c),
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
		Active: true,
	}
	if err := h.Store.CreateWebhook(c.Request.Context(), wh); err != nil {
		h.Logger.WithError(err).Error("❌ Failed to create webhook")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to create webhook")
		return
	}

	// The secret is only shown here, once.
	c.JSON(http.StatusCreated, gin.H{
		"id":         wh.ID,
		"url":        wh.URL,
		"events":     wh.Events,
		"secret":     secret,
		"active":     wh.Active,
		"created_at": wh.CreatedAt,
	})
}

// ListWebhooks returns the caller's webhooks, without secrets.
// GET /api/v1/webhooks
func (h *Handler) ListWebhooks(c *gin.Context) {
	webhooks, err := h.Store.ListWebhooksByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.Logger.WithError(err).Error("❌ Failed to list webhooks")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to list webhooks")
		return
	}
	if webhooks == nil {
		webhooks = []models.Webhook{}
	}
	for i := range webhooks {
		webhooks[i].Secret = ""
	}
	c.JSON(http.StatusOK, webhooks)
}

// ownedWebhook loads a webhook and hides other users' webhooks behind 404.
func (h *Handler) ownedWebhook(c *gin.Context) (*models.Webhook, bool) {
	wh, err := h.Store.GetWebhook(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "webhook")
		return nil, false
	}
	if wh.UserID != middleware.GetUserID(c) {
		respondError(c, http.StatusNotFound, "not_found", "webhook not found")
		return nil, false
	}
	return wh, true
}

// UpdateWebhook toggles a webhook's active state.
// PATCH /api/v1/webhooks/:id
func (h *Handler) UpdateWebhook(c *gin.Context) {
	var req models.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "active field is required (true/false)")
		return
	}

	wh, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	if err := h.Store.UpdateWebhookActive(c.Request.Context(), wh.ID, *req.Active); err != nil {
		h.storeError(c, err, "webhook")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Webhook updated", "active": *req.Active})
}

// DeleteWebhook removes a webhook and its delivery history.
// DELETE /api/v1/webhooks/:id
func (h *Handler) DeleteWebhook(c *gin.Context) {
	wh, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteWebhook(c.Request.Context(), wh.ID); err != nil {
		h.storeError(c, err, "webhook")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
}

// ListWebhookDeliveries returns recent delivery attempts across the caller's webhooks.
// GET /api/v1/webhooks/deliveries?limit=50
func (h *Handler) ListWebhookDeliveries(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	deliveries, err := h.Store.ListDeliveriesByUser(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		h.Logger.WithError(err).Error("❌ Failed to list deliveries")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []models.WebhookDelivery{}
	}
	c.JSON(http.StatusOK, deliveries)
}
