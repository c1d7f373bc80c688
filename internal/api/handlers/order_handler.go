package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// OrderHandler exposes order snapshots, staff fulfillment actions and
// remarks over HTTP.
type OrderHandler struct {
	fulfillmentService *services.FulfillmentService
	tracer             tracing.Tracer
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(fulfillmentService *services.FulfillmentService, tracer tracing.Tracer) *OrderHandler {
	return &OrderHandler{
		fulfillmentService: fulfillmentService,
		tracer:             tracer,
	}
}

// SampleLineRequest is one sample allocation of an add-samples request
type SampleLineRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,gt=0"`
}

// AddSamplesRequest carries the sample lines to allocate
type AddSamplesRequest struct {
	Lines []SampleLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// HoldRequest carries the mandatory hold reason
type HoldRequest struct {
	ReasonID uuid.UUID `json:"reason_id" binding:"required"`
}

// DispatchRequest carries exactly one of a rider or a courier id.
// Exclusivity is enforced by the transition decision, not here, so the
// rejection is consistent across HTTP and any future transport.
type DispatchRequest struct {
	RiderID   *uuid.UUID `json:"rider_id"`
	CourierID *uuid.UUID `json:"courier_id"`
}

// RemarkRequest carries a staff remark body
type RemarkRequest struct {
	Body          string `json:"body" binding:"required"`
	ShowOnInvoice bool   `json:"show_on_invoice"`
}

// HandleGetOrder returns one order snapshot
func (h *OrderHandler) HandleGetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.fulfillmentService.GetOrder(c.Request.Context(), callerFrom(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// HandleListOrders returns the caller's location orders at a stage
func (h *OrderHandler) HandleListOrders(c *gin.Context) {
	var query struct {
		Stage string `form:"stage" binding:"required"`
		Limit int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := h.fulfillmentService.ListOrders(c.Request.Context(), callerFrom(c), fulfillment.Stage(query.Stage), query.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// apply runs one decoded action and writes the fresh snapshot back
func (h *OrderHandler) apply(c *gin.Context, act fulfillment.Action) {
	txn := h.tracer.StartTransaction("api-fulfillment-action")
	defer h.tracer.EndTransaction(txn)
	h.tracer.AddAttribute(txn, "action", act.Name())

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.fulfillmentService.Apply(c.Request.Context(), callerFrom(c), orderID, act)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// HandleAddSamples allocates sample/free-issue items
func (h *OrderHandler) HandleAddSamples(c *gin.Context) {
	var req AddSamplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := make([]fulfillment.SampleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, fulfillment.SampleLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	h.apply(c, fulfillment.AddSamples{Lines: lines})
}

// HandleAdvanceToPrint moves the order into the print stage
func (h *OrderHandler) HandleAdvanceToPrint(c *gin.Context) {
	h.apply(c, fulfillment.AdvanceToPrint{})
}

// HandlePutOnHold parks the order with a reason
func (h *OrderHandler) HandlePutOnHold(c *gin.Context) {
	var req HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.apply(c, fulfillment.PutOnHold{ReasonID: req.ReasonID})
}

// HandleMarkReady flags the order ready for dispatch
func (h *OrderHandler) HandleMarkReady(c *gin.Context) {
	h.apply(c, fulfillment.MarkReady{})
}

// HandleRevertHold clears the hold without marking ready
func (h *OrderHandler) HandleRevertHold(c *gin.Context) {
	h.apply(c, fulfillment.RevertHold{})
}

// HandleDispatch hands the order to a rider or a courier
func (h *OrderHandler) HandleDispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.apply(c, fulfillment.Dispatch{RiderID: req.RiderID, CourierID: req.CourierID})
}

// HandleMarkDelivered records the customer receiving the order
func (h *OrderHandler) HandleMarkDelivered(c *gin.Context) {
	h.apply(c, fulfillment.MarkDelivered{})
}

// HandleMarkInvoiceComplete closes out the order
func (h *OrderHandler) HandleMarkInvoiceComplete(c *gin.Context) {
	h.apply(c, fulfillment.MarkInvoiceComplete{})
}

// HandleCompletePOS short-circuits an in-store order to completion
func (h *OrderHandler) HandleCompletePOS(c *gin.Context) {
	h.apply(c, fulfillment.CompletePOS{})
}

// HandleConfirmDelivery completes delivery via the rider's token link.
// No staff identity: the token is the credential.
func (h *OrderHandler) HandleConfirmDelivery(c *gin.Context) {
	order, err := h.fulfillmentService.ConfirmDelivery(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "delivered",
		"order":  order.Name,
	})
}

// HandleAddRemark attaches a staff note to the order
func (h *OrderHandler) HandleAddRemark(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req RemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	remark, err := h.fulfillmentService.AddRemark(c.Request.Context(), callerFrom(c), orderID, req.Body, req.ShowOnInvoice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, remark)
}

// HandleUpdateRemark edits an existing remark
func (h *OrderHandler) HandleUpdateRemark(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	remarkID, err := uuid.Parse(c.Param("remarkId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remark id"})
		return
	}
	var req RemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.fulfillmentService.UpdateRemark(c.Request.Context(), callerFrom(c), orderID, remarkID, req.Body, req.ShowOnInvoice); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// HandleDeleteRemark removes a remark
func (h *OrderHandler) HandleDeleteRemark(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	remarkID, err := uuid.Parse(c.Param("remarkId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remark id"})
		return
	}

	if err := h.fulfillmentService.DeleteRemark(c.Request.Context(), callerFrom(c), orderID, remarkID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// RegisterRoutes registers the handler's routes
func (h *OrderHandler) RegisterRoutes(router *gin.Engine) {
	// Rider-facing confirmation link, authenticated by token alone
	router.GET("/delivery/confirm/:token", h.HandleConfirmDelivery)

	orders := router.Group("/api/v1/orders", StaffAuth())
	{
		orders.GET("", h.HandleListOrders)
		orders.GET("/:id", h.HandleGetOrder)

		orders.POST("/:id/samples", h.HandleAddSamples)
		orders.POST("/:id/print", h.HandleAdvanceToPrint)
		orders.POST("/:id/hold", h.HandlePutOnHold)
		orders.POST("/:id/ready", h.HandleMarkReady)
		orders.POST("/:id/revert-hold", h.HandleRevertHold)
		orders.POST("/:id/dispatch", h.HandleDispatch)
		orders.POST("/:id/delivered", h.HandleMarkDelivered)
		orders.POST("/:id/invoice-complete", h.HandleMarkInvoiceComplete)
		orders.POST("/:id/complete-pos", h.HandleCompletePOS)

		orders.POST("/:id/remarks", h.HandleAddRemark)
		orders.PUT("/:id/remarks/:remarkId", h.HandleUpdateRemark)
		orders.DELETE("/:id/remarks/:remarkId", h.HandleDeleteRemark)
	}
}
