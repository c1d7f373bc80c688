package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// WebhookHandler receives inbound order events from the commerce channel
type WebhookHandler struct {
	ingestion *services.IngestionService
	tracer    tracing.Tracer
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingestion *services.IngestionService, tracer tracing.Tracer) *WebhookHandler {
	return &WebhookHandler{
		ingestion: ingestion,
		tracer:    tracer,
	}
}

// HandleOrderEvent ingests one order event. A reconciliation failure is
// already captured for replay by the service, so the source is answered
// with 200 either way and never retries on its own schedule.
func (h *WebhookHandler) HandleOrderEvent(c *gin.Context) {
	txn := h.tracer.StartTransaction("webhook-order-event")
	defer h.tracer.EndTransaction(txn)

	locationID, err := uuid.Parse(c.GetHeader("X-Location-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid location header"})
		return
	}

	topic := services.TopicOrderCreate
	if c.Param("topic") == "update" {
		topic = services.TopicOrderUpdate
	}
	h.tracer.AddAttribute(txn, "topic", topic)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty request body"})
		return
	}

	order, err := h.ingestion.ProcessOrderEvent(c.Request.Context(), raw, topic, locationID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		log.Warn().Err(err).Str("topic", topic).Msg("order event ingestion failed, captured for replay")
		c.JSON(http.StatusOK, gin.H{"status": "captured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"order_id": order.ID,
		"stage":    order.FulfillmentStage,
	})
}

// RegisterRoutes registers the handler's routes
func (h *WebhookHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhooks/orders/:topic", h.HandleOrderEvent)
}
