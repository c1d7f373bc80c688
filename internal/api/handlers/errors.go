package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
)

// respondError maps service and transition errors onto HTTP statuses.
// Anything unclassified is an internal error; the wrapped detail stays
// in the logs, not the response.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, fulfillment.ErrInvalidStage):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, fulfillment.ErrMissingParameter),
		errors.Is(err, fulfillment.ErrConflictingParameter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		var refErr *services.ReferenceNotFoundError
		if errors.As(err, &refErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": refErr.Error()})
			return
		}
		var ingestErr *services.IngestionError
		if errors.As(err, &ingestErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ingestErr.Error(), "reason": ingestErr.Reason})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
