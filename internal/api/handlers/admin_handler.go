package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// AdminHandler exposes captured ingestion failures for inspection and
// manual replay.
type AdminHandler struct {
	ingestion *services.IngestionService
	tracer    tracing.Tracer
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(ingestion *services.IngestionService, tracer tracing.Tracer) *AdminHandler {
	return &AdminHandler{
		ingestion: ingestion,
		tracer:    tracer,
	}
}

// HandleListFailedWebhooks lists the oldest captured events
func (h *AdminHandler) HandleListFailedWebhooks(c *gin.Context) {
	var query struct {
		Limit int `form:"limit"`
	}
	_ = c.ShouldBindQuery(&query)
	if query.Limit <= 0 || query.Limit > 500 {
		query.Limit = 100
	}

	records, err := h.ingestion.ListFailedWebhooks(c.Request.Context(), query.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed_webhooks": records})
}

// HandleReplayFailedWebhook re-runs one captured event
func (h *AdminHandler) HandleReplayFailedWebhook(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-replay-failed-webhook")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	order, err := h.ingestion.ReplayFailedWebhook(c.Request.Context(), id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "replayed",
		"order_id": order.ID,
		"stage":    order.FulfillmentStage,
	})
}

// RegisterRoutes registers the handler's routes
func (h *AdminHandler) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/api/v1/failed-webhooks", StaffAuth())
	{
		admin.GET("", h.HandleListFailedWebhooks)
		admin.POST("/:id/replay", h.HandleReplayFailedWebhook)
	}
}
