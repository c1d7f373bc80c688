package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/services"
)

const callerContextKey = "fulfillment-caller"

// StaffAuth resolves the caller from the gateway-injected identity
// headers. Authentication itself happens at the edge; this service only
// trusts the forwarded staff id, location and permission set.
func StaffAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		staffID, err := uuid.Parse(c.GetHeader("X-Staff-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid staff identity"})
			return
		}
		locationID, err := uuid.Parse(c.GetHeader("X-Location-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid location"})
			return
		}

		permissions := map[string]bool{}
		for _, p := range strings.Split(c.GetHeader("X-Staff-Permissions"), ",") {
			if p = strings.TrimSpace(p); p != "" {
				permissions[p] = true
			}
		}

		c.Set(callerContextKey, services.Caller{
			StaffID:     staffID,
			LocationID:  locationID,
			Permissions: permissions,
		})
		c.Next()
	}
}

func callerFrom(c *gin.Context) services.Caller {
	caller, _ := c.Get(callerContextKey)
	return caller.(services.Caller)
}
