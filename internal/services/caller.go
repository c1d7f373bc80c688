package services

import (
	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
)

// Caller identifies the authenticated staff member performing a request,
// scoped to a single location. Permissions are resolved upstream (the
// auth middleware) and carried here as a flat set of action names.
type Caller struct {
	StaffID     uuid.UUID
	LocationID  uuid.UUID
	Permissions map[string]bool
}

// Can reports whether the caller holds the permission for an action.
// The wildcard permission grants everything.
func (c Caller) Can(action string) bool {
	if c.Permissions == nil {
		return false
	}
	return c.Permissions["*"] || c.Permissions[action]
}

// AllActionPermissions lists every grantable fulfillment action name
func AllActionPermissions() []string {
	return []string{
		fulfillment.ActionAddSamples,
		fulfillment.ActionAdvanceToPrint,
		fulfillment.ActionPutOnHold,
		fulfillment.ActionMarkReady,
		fulfillment.ActionRevertHold,
		fulfillment.ActionDispatch,
		fulfillment.ActionMarkDelivered,
		fulfillment.ActionMarkInvoiceComplete,
		fulfillment.ActionCompletePOS,
	}
}
