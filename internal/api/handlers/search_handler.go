package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/search"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// SearchHandler exposes the back-office order search backed by the
// Elasticsearch index.
type SearchHandler struct {
	elastic *search.ElasticClient
	tracer  tracing.Tracer
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(elastic *search.ElasticClient, tracer tracing.Tracer) *SearchHandler {
	return &SearchHandler{
		elastic: elastic,
		tracer:  tracer,
	}
}

// HandleSearchOrders queries the order index, scoped to the caller's
// location.
func (h *SearchHandler) HandleSearchOrders(c *gin.Context) {
	if h.elastic == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not available"})
		return
	}

	txn := h.tracer.StartTransaction("api-search-orders")
	defer h.tracer.EndTransaction(txn)

	var query struct {
		Q     string `form:"q"`
		Stage string `form:"stage"`
		Size  int    `form:"size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Size <= 0 || query.Size > 100 {
		query.Size = 50
	}

	caller := callerFrom(c)
	must := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"location_id": caller.LocationID.String()},
		},
	}
	if query.Stage != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"fulfillment_stage": query.Stage},
		})
	}
	if query.Q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query.Q,
				"fields": []string{"name", "external_id", "contact_name", "contact_phone"},
			},
		})
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"size": query.Size,
		"sort": []interface{}{
			map[string]interface{}{"updated_at": map[string]interface{}{"order": "desc"}},
		},
	}

	docs, err := h.elastic.SearchOrders(c.Request.Context(), body)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// RegisterRoutes registers the handler's routes
func (h *SearchHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/v1/search/orders", StaffAuth(), h.HandleSearchOrders)
}
