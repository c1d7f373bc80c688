package fulfillment

import "github.com/google/uuid"

// Action names, used for permission classes, logging and metrics
const (
	ActionAddSamples          = "add_samples"
	ActionAdvanceToPrint      = "advance_to_print"
	ActionPutOnHold           = "put_on_hold"
	ActionMarkReady           = "mark_ready"
	ActionRevertHold          = "revert_hold"
	ActionDispatch            = "dispatch"
	ActionMarkDelivered       = "mark_delivered"
	ActionMarkInvoiceComplete = "mark_invoice_complete"
	ActionCompletePOS         = "complete_pos"
)

// Action is a staff fulfillment action. The set is closed: each action is
// a concrete type carrying exactly the parameters it needs, so a missing
// or conflicting parameter is impossible to overlook in Decide.
type Action interface {
	Name() string
	isAction()
}

// SampleLine is one sample/free-issue item with its quantity
type SampleLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// AddSamples records sample/free-issue allocations, advancing the order
// into the sampling stage if it is still at order_received
type AddSamples struct {
	Lines []SampleLine
}

// AdvanceToPrint moves the order to the print stage
type AdvanceToPrint struct{}

// PutOnHold parks the order at ready_to_dispatch with a mandatory reason
type PutOnHold struct {
	ReasonID uuid.UUID
}

// MarkReady flags the order ready for dispatch and clears any hold
type MarkReady struct{}

// RevertHold clears the hold sub-state without marking the order ready
type RevertHold struct{}

// Dispatch hands the order to exactly one of a rider or a courier
type Dispatch struct {
	RiderID   *uuid.UUID
	CourierID *uuid.UUID
}

// MarkDelivered records that the customer received the order
type MarkDelivered struct{}

// MarkInvoiceComplete closes out the order after delivery
type MarkInvoiceComplete struct{}

// CompletePOS short-circuits an in-store order through every remaining
// physical stage at once, without customer notifications
type CompletePOS struct{}

func (AddSamples) Name() string          { return ActionAddSamples }
func (AdvanceToPrint) Name() string      { return ActionAdvanceToPrint }
func (PutOnHold) Name() string           { return ActionPutOnHold }
func (MarkReady) Name() string           { return ActionMarkReady }
func (RevertHold) Name() string          { return ActionRevertHold }
func (Dispatch) Name() string            { return ActionDispatch }
func (MarkDelivered) Name() string       { return ActionMarkDelivered }
func (MarkInvoiceComplete) Name() string { return ActionMarkInvoiceComplete }
func (CompletePOS) Name() string         { return ActionCompletePOS }

func (AddSamples) isAction()          {}
func (AdvanceToPrint) isAction()      {}
func (PutOnHold) isAction()           {}
func (MarkReady) isAction()           {}
func (RevertHold) isAction()          {}
func (Dispatch) isAction()            {}
func (MarkDelivered) isAction()       {}
func (MarkInvoiceComplete) isAction() {}
func (CompletePOS) isAction()         {}
